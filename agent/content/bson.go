package content

import (
	"fmt"
	"html"

	"go.mongodb.org/mongo-driver/bson"
)

// ItemToDocument encodes an item in the persisted document shape. The layout
// mirrors the wire JSON; function call arguments flatten to an ordered
// key-to-string document with HTML entities unescaped.
func ItemToDocument(it Item) (bson.D, error) {
	switch c := it.(type) {
	case TextContent:
		return bson.D{
			{Key: "type", Value: string(KindText)},
			{Key: "text", Value: bson.D{
				{Key: "value", Value: c.Value},
				{Key: "annotations", Value: bson.A{}},
			}},
		}, nil
	case FunctionCallContent:
		args := bson.D{}
		if c.Arguments != nil {
			for _, key := range c.Arguments.Keys() {
				value, _ := c.Arguments.Get(key)
				args = append(args, bson.E{Key: key, Value: html.UnescapeString(value)})
			}
		}
		return bson.D{
			{Key: "type", Value: string(KindFunctionCall)},
			{Key: "functionCall", Value: bson.D{
				{Key: "pluginName", Value: c.PluginName},
				{Key: "functionName", Value: c.FunctionName},
				{Key: "id", Value: c.ID},
				{Key: "arguments", Value: args},
			}},
		}, nil
	case FunctionResultContent:
		return bson.D{
			{Key: "type", Value: string(KindFunctionResult)},
			{Key: "functionResult", Value: bson.D{
				{Key: "pluginName", Value: c.PluginName},
				{Key: "functionName", Value: c.FunctionName},
				{Key: "id", Value: c.ID},
				{Key: "result", Value: c.Result},
			}},
		}, nil
	default:
		return nil, fmt.Errorf("encode content item: unknown variant %T", it)
	}
}

// ItemFromDocument decodes a persisted item document, dispatching on the
// type field. A missing or unrecognized type fails with ErrUnsupportedType.
func ItemFromDocument(doc bson.D) (Item, error) {
	kind, _ := docString(doc, "type")
	switch Kind(kind) {
	case KindText:
		body, err := docChild(doc, "text")
		if err != nil {
			return nil, err
		}
		value, _ := docString(body, "value")
		return TextContent{Value: value}, nil
	case KindFunctionCall:
		body, err := docChild(doc, "functionCall")
		if err != nil {
			return nil, err
		}
		item := FunctionCallContent{Arguments: NewArguments()}
		item.PluginName, _ = docString(body, "pluginName")
		item.FunctionName, _ = docString(body, "functionName")
		item.ID, _ = docString(body, "id")
		if args, err := docChild(body, "arguments"); err == nil {
			for _, elem := range args {
				item.Arguments.Set(elem.Key, stringify(elem.Value))
			}
		}
		return item, nil
	case KindFunctionResult:
		body, err := docChild(doc, "functionResult")
		if err != nil {
			return nil, err
		}
		item := FunctionResultContent{}
		item.PluginName, _ = docString(body, "pluginName")
		item.FunctionName, _ = docString(body, "functionName")
		item.ID, _ = docString(body, "id")
		item.Result, _ = docString(body, "result")
		return item, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnsupportedType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, kind)
	}
}

func docLookup(doc bson.D, key string) (any, bool) {
	for _, elem := range doc {
		if elem.Key == key {
			return elem.Value, true
		}
	}
	return nil, false
}

func docString(doc bson.D, key string) (string, bool) {
	v, ok := docLookup(doc, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func docChild(doc bson.D, key string) (bson.D, error) {
	v, ok := docLookup(doc, key)
	if !ok {
		return nil, fmt.Errorf("content item document: missing %q", key)
	}
	switch child := v.(type) {
	case bson.D:
		return child, nil
	case bson.M:
		out := make(bson.D, 0, len(child))
		for k, val := range child {
			out = append(out, bson.E{Key: k, Value: val})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("content item document: %q is not a document", key)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case bson.D, bson.M:
		raw, err := bson.MarshalExtJSON(val, false, false)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", val)
	}
}
