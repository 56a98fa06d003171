package stream

import "fmt"

// WriteError reports a failed event write, usually a disconnected client.
// The run engine treats it as fatal and stops emitting immediately.
type WriteError struct {
	Name string
	Err  error
}

// Error implements error.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s event: %v", e.Name, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *WriteError) Unwrap() error { return e.Err }
