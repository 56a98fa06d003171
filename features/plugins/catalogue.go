package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/matthewbolanos/sk-party-planning-committee/agent/model"
)

// Options configures a plugin tool catalogue.
type Options struct {
	// PluginName prefixes every tool name advertised to the model.
	PluginName string
	// Document is the raw OpenAPI description of the service.
	Document []byte
	// Endpoints lists the base URLs the service may be reached at, probed
	// in order on every resolve.
	Endpoints []string
	// Client is used for both health probes and invocations. Defaults to
	// http.DefaultClient.
	Client *http.Client
	// HealthPath overrides the route probed for liveness. Defaults to
	// /health.
	HealthPath string
}

// Catalogue derives tools from one plugin service's OpenAPI document and
// invokes them over HTTP against a live endpoint.
type Catalogue struct {
	plugin     string
	ops        []operation
	validators map[string]*jsonschema.Schema
	endpoints  []string
	client     *http.Client
	prober     *Prober
}

// New parses the document, flattens its operations and compiles their
// argument schemas. Invalid documents fail here rather than at run time.
func New(opts Options) (*Catalogue, error) {
	if opts.PluginName == "" {
		return nil, errors.New("plugin name is required")
	}
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	doc, err := ParseDocument(opts.Document)
	if err != nil {
		return nil, err
	}
	ops, err := doc.Operations()
	if err != nil {
		return nil, err
	}
	validators := make(map[string]*jsonschema.Schema, len(ops))
	for _, op := range ops {
		schema, err := compileSchema(op.Name, op.Schema)
		if err != nil {
			return nil, err
		}
		validators[op.Name] = schema
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Catalogue{
		plugin:     opts.PluginName,
		ops:        ops,
		validators: validators,
		endpoints:  opts.Endpoints,
		client:     client,
		prober:     NewProber(client, opts.HealthPath),
	}, nil
}

// Resolve probes for a live endpoint and returns the tool catalogue bound to
// it. Each resolve re-probes so a service instance going down between runs
// fails over to the next endpoint.
func (c *Catalogue) Resolve(ctx context.Context) ([]*model.Tool, error) {
	endpoint, err := c.prober.Healthy(ctx, c.endpoints)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", c.plugin, err)
	}
	tools := make([]*model.Tool, 0, len(c.ops))
	for _, op := range c.ops {
		op := op
		tools = append(tools, &model.Tool{
			PluginName:  c.plugin,
			Name:        op.Name,
			Description: op.Description,
			Parameters:  op.Schema,
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				return c.invoke(ctx, endpoint, op, args)
			},
		})
	}
	return tools, nil
}

func (c *Catalogue) invoke(ctx context.Context, endpoint string, op operation, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := c.validators[op.Name].Validate(args); err != nil {
		return "", fmt.Errorf("tool %s arguments: %w", op.Name, err)
	}
	path := op.Path
	for _, name := range op.PathParams {
		value, ok := args[name]
		if !ok {
			return "", fmt.Errorf("tool %s: missing path parameter %s", op.Name, name)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(argString(value)))
	}
	target := strings.TrimSuffix(endpoint, "/") + path
	query := url.Values{}
	for _, name := range op.QueryParams {
		if value, ok := args[name]; ok {
			query.Set(name, argString(value))
		}
	}
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	var body io.Reader
	if len(op.BodyParams) > 0 {
		payload := make(map[string]any, len(op.BodyParams))
		for _, name := range op.BodyParams {
			if value, ok := args[name]; ok {
				payload[name] = value
			}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("tool %s: encode body: %w", op.Name, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, op.Method, target, body)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", op.Name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", op.Name, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("tool %s: read response: %w", op.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tool %s: %s returned %d: %s", op.Name, target, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return string(raw), nil
}

// Group resolves several plugin catalogues as one.
type Group []*Catalogue

func (g Group) Resolve(ctx context.Context) ([]*model.Tool, error) {
	var tools []*model.Tool
	for _, cat := range g {
		resolved, err := cat.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		tools = append(tools, resolved...)
	}
	return tools, nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return compiled, nil
}

func argString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a fraction.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
