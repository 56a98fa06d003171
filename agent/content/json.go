package content

import (
	"encoding/json"
	"fmt"
)

// Wire envelopes. Each item serializes as {"type": <tag>, <tag>: {...}} so
// that readers can dispatch on the type field alone.
type (
	textEnvelope struct {
		Value       string `json:"value"`
		Annotations []any  `json:"annotations"`
	}

	functionCallEnvelope struct {
		ID           string     `json:"id"`
		PluginName   string     `json:"pluginName"`
		FunctionName string     `json:"functionName"`
		Arguments    *Arguments `json:"arguments"`
	}

	functionResultEnvelope struct {
		ID           string `json:"id"`
		PluginName   string `json:"pluginName"`
		FunctionName string `json:"functionName"`
		Result       string `json:"result"`
	}
)

// MarshalItem encodes a single item in the wire JSON shape. An item outside
// the closed variant set is an internal error, not a user-facing one.
func MarshalItem(it Item) ([]byte, error) {
	switch c := it.(type) {
	case TextContent:
		return json.Marshal(struct {
			Type Kind         `json:"type"`
			Text textEnvelope `json:"text"`
		}{KindText, textEnvelope{Value: c.Value, Annotations: []any{}}})
	case FunctionCallContent:
		args := c.Arguments
		if args == nil {
			args = NewArguments()
		}
		return json.Marshal(struct {
			Type         Kind                 `json:"type"`
			FunctionCall functionCallEnvelope `json:"functionCall"`
		}{KindFunctionCall, functionCallEnvelope{
			ID:           c.ID,
			PluginName:   c.PluginName,
			FunctionName: c.FunctionName,
			Arguments:    args,
		}})
	case FunctionResultContent:
		return json.Marshal(struct {
			Type           Kind                   `json:"type"`
			FunctionResult functionResultEnvelope `json:"functionResult"`
		}{KindFunctionResult, functionResultEnvelope{
			ID:           c.ID,
			PluginName:   c.PluginName,
			FunctionName: c.FunctionName,
			Result:       c.Result,
		}})
	default:
		return nil, fmt.Errorf("marshal content item: unknown variant %T", it)
	}
}

// UnmarshalItem decodes a single wire JSON item, dispatching on the type
// field. A missing or unrecognized type fails with ErrUnsupportedType.
func UnmarshalItem(data []byte) (Item, error) {
	var probe struct {
		Type           Kind                    `json:"type"`
		Text           json.RawMessage         `json:"text"`
		FunctionCall   *functionCallEnvelope   `json:"functionCall"`
		FunctionResult *functionResultEnvelope `json:"functionResult"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Type {
	case KindText:
		value, err := decodeTextField(probe.Text)
		if err != nil {
			return nil, err
		}
		return TextContent{Value: value}, nil
	case KindFunctionCall:
		if probe.FunctionCall == nil {
			return nil, fmt.Errorf("content item %q: missing functionCall body", probe.Type)
		}
		args := probe.FunctionCall.Arguments
		if args == nil {
			args = NewArguments()
		}
		return FunctionCallContent{
			PluginName:   probe.FunctionCall.PluginName,
			FunctionName: probe.FunctionCall.FunctionName,
			ID:           probe.FunctionCall.ID,
			Arguments:    args,
		}, nil
	case KindFunctionResult:
		if probe.FunctionResult == nil {
			return nil, fmt.Errorf("content item %q: missing functionResult body", probe.Type)
		}
		return FunctionResultContent{
			PluginName:   probe.FunctionResult.PluginName,
			FunctionName: probe.FunctionResult.FunctionName,
			ID:           probe.FunctionResult.ID,
			Result:       probe.FunctionResult.Result,
		}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnsupportedType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, probe.Type)
	}
}

// decodeTextField accepts either the full {"value": ...} envelope or a bare
// string, which some producers emit for text blocks.
func decodeTextField(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}
	var env textEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode text content: %w", err)
	}
	return env.Value, nil
}

// Items is an ordered content item sequence with list-level JSON codecs.
type Items []Item

// MarshalJSON encodes the sequence as an array of wire items.
func (items Items) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, len(items))
	for i, it := range items {
		raw, err := MarshalItem(it)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an array of wire items.
func (items *Items) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	decoded := make(Items, 0, len(raws))
	for _, raw := range raws {
		it, err := UnmarshalItem(raw)
		if err != nil {
			return err
		}
		decoded = append(decoded, it)
	}
	*items = decoded
	return nil
}

// UnmarshalInputItems decodes the content field of a creation request. A bare
// string is normalized into a single text item; otherwise the field must be
// an array of blocks of which only "text" blocks are taken, each accepting a
// bare string or a {"value": ...} object for its text field.
func UnmarshalInputItems(data []byte) ([]Item, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		return []Item{TextContent{Value: bare}}, nil
	}
	var blocks []struct {
		Type Kind            `json:"type"`
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("decode message content: %w", err)
	}
	var items []Item
	for _, block := range blocks {
		if block.Type != KindText {
			continue
		}
		value, err := decodeTextField(block.Text)
		if err != nil {
			return nil, err
		}
		items = append(items, TextContent{Value: value})
	}
	return items, nil
}
