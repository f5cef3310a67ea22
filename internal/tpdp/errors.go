package tpdp

import "errors"

// Sentinel errors for handshake failures. These are
// compared with errors.Is, never constructed by callers.
var (
	// ErrProtocol means the peer deviated from the expected TPDP/0.1 byte
	// sequence: a bad Hello, a bad ACK, or an unexpected EOF mid-handshake.
	ErrProtocol = errors.New("tpdp: protocol error")

	// ErrTimeout means a handshake step exceeded its deadline.
	ErrTimeout = errors.New("tpdp: handshake timed out")

	// ErrDestinationUnreachable means a node could not open a TCP
	// connection to the destination its source negotiated.
	ErrDestinationUnreachable = errors.New("tpdp: destination connection error")
)

// ErrorByte is one of the three single-byte error codes a node sends to
// its source before closing (spec §6.1), and that a client observes as
// the last byte on a hop when a handshake step it tunnelled through
// fails partway. It implements error so it can be returned and matched
// directly by callers that care which kind fired.
type ErrorByte byte

const (
	ErrByteTimeout     ErrorByte = 0x00
	ErrByteProtocol    ErrorByte = 0x01
	ErrByteDestination ErrorByte = 0x02
)

func (e ErrorByte) Error() string {
	switch e {
	case ErrByteTimeout:
		return "tpdp: TIMEOUT_ERROR"
	case ErrByteProtocol:
		return "tpdp: PROTOCOL_ERROR"
	case ErrByteDestination:
		return "tpdp: DESTINATION_CONNECTION_ERROR"
	default:
		return "tpdp: unrecognized error byte"
	}
}

// Unwrap lets errors.Is(err, ErrProtocol) etc. succeed against the
// corresponding ErrorByte, since both describe the same failure kind.
func (e ErrorByte) Unwrap() error {
	switch e {
	case ErrByteTimeout:
		return ErrTimeout
	case ErrByteProtocol:
		return ErrProtocol
	case ErrByteDestination:
		return ErrDestinationUnreachable
	default:
		return nil
	}
}
