// internal/protocol/errors.go
package protocol

import "fmt"

// Error reports a response whose length or shape does not match the
// declared structure, or a request for an unknown command.
type Error struct {
	Op   string // "encode", "decode uid", ...
	Want int    // minimum length, 0 if not a length error
	Got  int
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("protocol: %s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("protocol: %s: short response: got=%d want>=%d", e.Op, e.Got, e.Want)
}
