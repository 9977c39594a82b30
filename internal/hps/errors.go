package hps

import "errors"

// Sentinel errors surfaced by the wire decoders, the executor and the
// dispatcher. Callers compare
// with errors.Is rather than inspecting dynamic error text.
var (
	ErrBadOpcode = errors.New("hps: unknown control point opcode")

	// ErrBadFrameLength is returned when a fixed-width characteristic
	// (Chunk Index, HTTPS Security) is written with the wrong number of
	// bytes.
	ErrBadFrameLength = errors.New("hps: write has unexpected frame length")

	ErrURIInvalid    = errors.New("hps: stored URI is invalid")
	ErrTimeout       = errors.New("hps: request timed out")
	ErrConnectFailed = errors.New("hps: connection to origin failed")
	ErrTLSFailed     = errors.New("hps: TLS handshake failed")
	ErrDNSFailed     = errors.New("hps: DNS resolution failed")
	ErrCancelled     = errors.New("hps: request cancelled")
)

// StatusSentinel is the status code stored in the Session whenever the
// executor reports a failure of any kind.
const StatusSentinel uint16 = 0x0000
