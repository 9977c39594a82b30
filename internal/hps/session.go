// Package hps holds the data shared by every GATT characteristic handler:
// the Session record, its wire encodings, and the Control Point opcode
// table. None of this package talks to the BLE stack or the network.
package hps

import "sync"

// MinChunkSize is the smallest chunk size a Session will accept.
const MinChunkSize = 20

// BufferSelector picks which response buffer SliceChunk reads from.
type BufferSelector int

const (
	// HeaderBuffer selects resp_headers.
	HeaderBuffer BufferSelector = iota
	// BodyBuffer selects resp_body.
	BodyBuffer
)

// Session is the request currently being assembled plus the most recent
// response. All byte buffers are owned by Session and replaced wholesale on
// write; accessors return private copies, guarded by a single mutex.
type Session struct {
	mu sync.Mutex

	uri        []byte
	reqHeaders []byte
	reqBody    []byte

	respHeaders     []byte
	respBody        []byte
	statusCode      uint16
	truncationFlags byte
	chunkIndices    ChunkIndices

	chunkSize      uint32
	tlsVerify      bool
	requestTimeout uint32 // seconds
}

// NewSession constructs a Session with the given chunk size and request
// timeout, clamping chunkSize to MinChunkSize.
func NewSession(chunkSize uint32, requestTimeoutSeconds uint32) *Session {
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}
	return &Session{
		chunkSize:      chunkSize,
		tlsVerify:      true,
		requestTimeout: requestTimeoutSeconds,
	}
}

// RequestSnapshot is an owned copy of the request-side fields, taken so the
// executor can operate without holding the session lock across network I/O.
type RequestSnapshot struct {
	URI            []byte
	Headers        []byte
	Body           []byte
	TLSVerify      bool
	RequestTimeout uint32
}

func (s *Session) SetURI(v []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uri = cloneBytes(v)
}

func (s *Session) SetRequestHeaders(v []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqHeaders = cloneBytes(v)
}

func (s *Session) SetRequestBody(v []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqBody = cloneBytes(v)
}

func (s *Session) SetTLSVerify(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tlsVerify = v
}

func (s *Session) TLSVerify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tlsVerify
}

// Snapshot is the only way the executor observes the Session.
func (s *Session) Snapshot() RequestSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RequestSnapshot{
		URI:            cloneBytes(s.uri),
		Headers:        cloneBytes(s.reqHeaders),
		Body:           cloneBytes(s.reqBody),
		TLSVerify:      s.tlsVerify,
		RequestTimeout: s.requestTimeout,
	}
}

// StoreResponse replaces the response fields and resets the chunk indices.
func (s *Session) StoreResponse(status uint16, headers, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCode = status
	s.respHeaders = cloneBytes(headers)
	s.respBody = cloneBytes(body)
	s.chunkIndices = ChunkIndices{}
	s.truncationFlags = ComputeTruncationFlags(len(s.respHeaders), len(s.respBody), s.chunkSize)
}

// ClearResponse resets the response half of the session to its sentinel
// state, used on failure and on cancellation.
func (s *Session) ClearResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCode = StatusSentinel
	s.respHeaders = nil
	s.respBody = nil
	s.chunkIndices = ChunkIndices{}
	s.truncationFlags = 0
}

func (s *Session) StatusFrame() StatusFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusFrame{Status: s.statusCode, TruncationFlags: s.truncationFlags}
}

func (s *Session) ChunkIndices() ChunkIndices {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkIndices
}

func (s *Session) SetChunkIndices(idx ChunkIndices) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkIndices = idx
}

func (s *Session) MTUSizes() MTUSizes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MTUSizes{
		ResponseHeadersLen: uint32(len(s.respHeaders)),
		ResponseBodyLen:    uint32(len(s.respBody)),
		ChunkSize:          s.chunkSize,
	}
}

func (s *Session) ChunkSize() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkSize
}

// SliceChunk returns buffer[index*chunkSize : min((index+1)*chunkSize, len(buffer))],
// or an empty slice past the end of the buffer.
func (s *Session) SliceChunk(selector BufferSelector, index uint32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf []byte
	switch selector {
	case HeaderBuffer:
		buf = s.respHeaders
	case BodyBuffer:
		buf = s.respBody
	}

	start := uint64(index) * uint64(s.chunkSize)
	if start >= uint64(len(buf)) {
		return []byte{}
	}
	end := start + uint64(s.chunkSize)
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	out := make([]byte, end-start)
	copy(out, buf[start:end])
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
