package bounce

import "fmt"

// MessageProcessingError reports a failure scoped to a single message. It never
// aborts an archive scan; the text extracted before the failure stays usable.
type MessageProcessingError struct {
	Op  string
	Err error
}

func (e *MessageProcessingError) Error() string {
	return fmt.Sprintf("bounce %s: %v", e.Op, e.Err)
}

func (e *MessageProcessingError) Unwrap() error {
	return e.Err
}
