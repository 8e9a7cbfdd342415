package santec

import "fmt"

// ProtocolError is returned when a response from the laser does not parse
type ProtocolError struct {
	Command  string
	Response string
	Err      error
}

// Error satisfies the error interface
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("santec: unexpected response %q to %s: %v", e.Response, e.Command, e.Err)
	}
	return fmt.Sprintf("santec: unexpected response %q to %s", e.Response, e.Command)
}

// Unwrap returns the parse error, if any
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// OutOfRangeError is returned by a setter before anything is sent when
// the value is outside the limits of the instrument
type OutOfRangeError struct {
	Parameter string
	Value     float64
	Min       float64
	Max       float64
	Unit      string
}

// Error satisfies the error interface
func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("santec: %s %g %s outside [%g, %g] %s", e.Parameter, e.Value, e.Unit, e.Min, e.Max, e.Unit)
}
