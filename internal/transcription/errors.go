package transcription

import "fmt"

// TransportError indicates a network or HTTP-level failure: connection
// refused, non-success status, or a read error mid-stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transcription transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the engine violated the stream contract, e.g.
// the body ended without a terminal event.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transcription protocol error: %s", e.Reason)
}

// ServiceError carries an explicit error event reported by the engine
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return "transcription service reported an error"
	}
	return e.Message
}
