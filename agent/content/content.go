// Package content defines the typed units that make up a chat message: plain
// text, a function call issued by the model, and the result of executing such
// a call. Items cross two boundaries — the public JSON wire format and the
// persisted MongoDB document format — and the codecs for both live here so
// that no other package needs to know the tagged layout.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags a content item variant.
type Kind string

const (
	// KindText tags plain text content.
	KindText Kind = "text"
	// KindFunctionCall tags a tool invocation requested by the model.
	KindFunctionCall Kind = "functionCall"
	// KindFunctionResult tags the outcome of a previously issued call.
	KindFunctionResult Kind = "functionResult"
)

// ErrUnsupportedType reports a decode of a content item whose type tag is
// missing or unrecognized.
var ErrUnsupportedType = errors.New("unsupported content type")

type (
	// Item is one typed unit of message content. The three implementations
	// below form a closed set; codecs and classifiers switch exhaustively
	// over them and treat any other implementation as an internal error.
	Item interface {
		// Kind returns the variant tag.
		Kind() Kind
		// Text returns the scalar prompt representation of the item. For
		// function calls this is "<plugin>-<function>: <json args>", for
		// results the raw result string.
		Text() string

		isItem()
	}

	// TextContent carries plain text produced by a user or the model.
	TextContent struct {
		Value string
	}

	// FunctionCallContent records a tool invocation requested by the model.
	// The ID correlates the call with its eventual FunctionResultContent.
	FunctionCallContent struct {
		PluginName   string
		FunctionName string
		ID           string
		Arguments    *Arguments
	}

	// FunctionResultContent records the outcome of executing a function
	// call. PluginName and FunctionName are backfilled from the call that
	// shares the same ID.
	FunctionResultContent struct {
		PluginName   string
		FunctionName string
		ID           string
		Result       string
	}
)

// Kind returns KindText.
func (TextContent) Kind() Kind { return KindText }

// Kind returns KindFunctionCall.
func (FunctionCallContent) Kind() Kind { return KindFunctionCall }

// Kind returns KindFunctionResult.
func (FunctionResultContent) Kind() Kind { return KindFunctionResult }

// Text returns the text value.
func (c TextContent) Text() string { return c.Value }

// Text renders the call as "<plugin>-<function>: <json arguments>".
func (c FunctionCallContent) Text() string {
	args := "{}"
	if c.Arguments != nil {
		if raw, err := json.Marshal(c.Arguments); err == nil {
			args = string(raw)
		}
	}
	return fmt.Sprintf("%s-%s: %s", c.PluginName, c.FunctionName, args)
}

// Text returns the raw result string.
func (c FunctionResultContent) Text() string { return c.Result }

func (TextContent) isItem()           {}
func (FunctionCallContent) isItem()   {}
func (FunctionResultContent) isItem() {}
