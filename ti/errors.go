package ti

import "fmt"

// ValidationError is returned when a channel or value is out of range.
// It is always raised before anything is sent to the device.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

// Error satisfies the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("ti: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// DeviceCommunicationError wraps a failure of the bus while sending a word.
// The device state is undefined afterwards; re-synchronize with SoftwareReset.
type DeviceCommunicationError struct {
	Op   string
	Word uint32
	Err  error
}

// Error satisfies the error interface
func (e *DeviceCommunicationError) Error() string {
	return fmt.Sprintf("ti: %s: sending word %#08x: %v", e.Op, e.Word, e.Err)
}

// Unwrap returns the underlying transport error
func (e *DeviceCommunicationError) Unwrap() error {
	return e.Err
}

// UnknownStateError is returned by readback of a channel that has not been
// written since construction or the last reset
type UnknownStateError struct {
	Channel Channel
}

// Error satisfies the error interface
func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("ti: channel %s has no known output since construction or reset", e.Channel)
}
