package netio

import "github.com/miroslavkrysl/bssrv/internal/proto"

// PeerErrorKind classifies why a Peer I/O operation ended.
type PeerErrorKind int

const (
	// Closed means the stream is gone: EOF, a reset, or any I/O error
	// other than a transient interrupt.
	Closed PeerErrorKind = iota
	// Deserialization means the stream is alive but sent framing or
	// payload bytes the codec rejected; the connection must still be
	// torn down, since the stream state is no longer recoverable.
	Deserialization
)

// PeerError reports why DoRead or DoWrite could not continue.
type PeerError struct {
	Kind  PeerErrorKind
	Cause error
}

func (e *PeerError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "peer closed"
}

func (e *PeerError) Unwrap() error { return e.Cause }

func closedError(cause error) *PeerError {
	return &PeerError{Kind: Closed, Cause: cause}
}

func deserializationError(cause *proto.DeserializeError) *PeerError {
	return &PeerError{Kind: Deserialization, Cause: cause}
}
