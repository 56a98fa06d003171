// Package mongo implements the low-level MongoDB client used by the thread
// and message stores. Threads live in the Threads collection keyed by their
// opaque string id; messages live in the Messages collection keyed by
// ObjectID with snake_case provenance fields and typed content item
// subdocuments.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/content"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/message"
	"github.com/matthewbolanos/sk-party-planning-committee/agent/thread"
)

const (
	defaultThreadCollection  = "Threads"
	defaultMessageCollection = "Messages"
	defaultTimeout           = 5 * time.Second
	clientName               = "store-mongo"
)

// Client exposes Mongo-backed operations for threads and messages.
type Client interface {
	health.Pinger

	InsertThread(ctx context.Context, t thread.Thread) error
	FindThread(ctx context.Context, id string) (thread.Thread, error)
	ThreadExists(ctx context.Context, id string) (bool, error)
	DeleteThread(ctx context.Context, id string) (bool, error)

	InsertMessage(ctx context.Context, msg message.Message) error
	FindMessage(ctx context.Context, threadID, id string) (message.Message, error)
	ListMessages(ctx context.Context, threadID string, opts message.ListOptions) ([]message.Message, error)
	DeleteMessage(ctx context.Context, threadID, id string) (bool, error)
}

// Options configures the Mongo client implementation.
type Options struct {
	Client            *mongodriver.Client
	Database          string
	ThreadCollection  string
	MessageCollection string
	Timeout           time.Duration
}

type client struct {
	mongo    *mongodriver.Client
	threads  collection
	messages collection
	timeout  time.Duration
}

// New returns a Client backed by the provided MongoDB client.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	threadColl := opts.ThreadCollection
	if threadColl == "" {
		threadColl = defaultThreadCollection
	}
	messageColl := opts.MessageCollection
	if messageColl == "" {
		messageColl = defaultMessageCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	db := opts.Client.Database(opts.Database)
	threads := mongoCollection{coll: db.Collection(threadColl)}
	messages := mongoCollection{coll: db.Collection(messageColl)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, messages); err != nil {
		return nil, err
	}
	return newClientWithCollections(opts.Client, threads, messages, timeout)
}

func (c *client) Name() string {
	return clientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) InsertThread(ctx context.Context, t thread.Thread) error {
	if t.ID == "" {
		return errors.New("thread id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	doc := threadDocument{ID: t.ID, Object: t.Object, CreatedAt: t.CreatedAt.UTC()}
	filter := bson.M{"_id": t.ID}
	_, err := c.threads.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (c *client) FindThread(ctx context.Context, id string) (thread.Thread, error) {
	if id == "" {
		return thread.Thread{}, errors.New("thread id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc threadDocument
	if err := c.threads.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return thread.Thread{}, thread.ErrNotFound
		}
		return thread.Thread{}, err
	}
	return thread.Thread{ID: doc.ID, Object: doc.Object, CreatedAt: doc.CreatedAt}, nil
}

func (c *client) ThreadExists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	n, err := c.threads.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *client) DeleteThread(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.threads.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (c *client) InsertMessage(ctx context.Context, msg message.Message) error {
	doc, err := toMessageDocument(msg)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	// The id is assigned at construction time, so the write is an
	// idempotent upsert keyed on it.
	filter := bson.M{"_id": doc.ID}
	_, err = c.messages.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (c *client) FindMessage(ctx context.Context, threadID, id string) (message.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return message.Message{}, message.ErrNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc messageDocument
	filter := bson.M{"_id": oid, "thread_id": threadID}
	if err := c.messages.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return message.Message{}, message.ErrNotFound
		}
		return message.Message{}, err
	}
	return fromMessageDocument(doc)
}

func (c *client) ListMessages(ctx context.Context, threadID string, opts message.ListOptions) ([]message.Message, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	order := -1
	if opts.Ascending {
		order = 1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: order}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	cur, err := c.messages.Find(ctx, bson.M{"thread_id": threadID}, findOpts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	msgs := make([]message.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := fromMessageDocument(doc)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *client) DeleteMessage(ctx context.Context, threadID, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.messages.DeleteOne(ctx, bson.M{"_id": oid, "thread_id": threadID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type threadDocument struct {
	ID        string    `bson:"_id"`
	Object    string    `bson:"object"`
	CreatedAt time.Time `bson:"created_at"`
}

type messageDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	ThreadID    string             `bson:"thread_id"`
	RunID       string             `bson:"run_id,omitempty"`
	AssistantID string             `bson:"assistant_id,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	Role        string             `bson:"role"`
	Content     any                `bson:"content"`
}

func toMessageDocument(msg message.Message) (messageDocument, error) {
	oid, err := primitive.ObjectIDFromHex(msg.ID)
	if err != nil {
		return messageDocument{}, fmt.Errorf("message id %q is not a valid object id: %w", msg.ID, err)
	}
	items := make(bson.A, 0, len(msg.Items))
	for _, item := range msg.Items {
		doc, err := content.ItemToDocument(item)
		if err != nil {
			return messageDocument{}, err
		}
		items = append(items, doc)
	}
	return messageDocument{
		ID:          oid,
		ThreadID:    msg.ThreadID,
		RunID:       msg.RunID,
		AssistantID: msg.AssistantID,
		CreatedAt:   msg.CreatedAt.UTC(),
		Role:        string(msg.Role),
		Content:     items,
	}, nil
}

func fromMessageDocument(doc messageDocument) (message.Message, error) {
	role, err := message.ParseRole(doc.Role)
	if err != nil {
		return message.Message{}, err
	}
	items, err := decodeContent(doc.Content)
	if err != nil {
		return message.Message{}, err
	}
	return message.Message{
		ID:          doc.ID.Hex(),
		ThreadID:    doc.ThreadID,
		RunID:       doc.RunID,
		AssistantID: doc.AssistantID,
		CreatedAt:   doc.CreatedAt,
		Role:        role,
		Items:       items,
	}, nil
}

// decodeContent replays typed content items. Legacy documents store content
// as a bare string, which normalizes to a single text item.
func decodeContent(raw any) ([]content.Item, error) {
	switch value := raw.(type) {
	case string:
		return []content.Item{content.TextContent{Value: value}}, nil
	case bson.A:
		items := make([]content.Item, 0, len(value))
		for _, elem := range value {
			doc, ok := elem.(bson.D)
			if !ok {
				return nil, fmt.Errorf("content element is not a document: %T", elem)
			}
			item, err := content.ItemFromDocument(doc)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported content field type %T", raw)
	}
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: 1}},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

func newClientWithCollections(mongoClient *mongodriver.Client, threads, messages collection, timeout time.Duration) (*client, error) {
	if threads == nil || messages == nil {
		return nil, errors.New("collections are required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		mongo:    mongoClient,
		threads:  threads,
		messages: messages,
		timeout:  timeout,
	}, nil
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any) (*mongodriver.DeleteResult, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	All(ctx context.Context, results any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c mongoCollection) ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter)
}

func (c mongoCollection) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	return c.coll.CountDocuments(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
