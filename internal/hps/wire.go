package hps

import "encoding/binary"

// Truncation flag bits within the Status Code notification's third byte.
const (
	TruncatedHeaders byte = 1 << 0
	TruncatedBody    byte = 1 << 1
)

// ChunkIndices is the 8-byte little-endian payload read from and written to
// the Chunk Index characteristic.
type ChunkIndices struct {
	HeaderIndex uint32
	BodyIndex   uint32
}

// Encode returns the 8-byte wire encoding of idx.
func (idx ChunkIndices) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], idx.HeaderIndex)
	binary.LittleEndian.PutUint32(b[4:8], idx.BodyIndex)
	return b
}

// DecodeChunkIndices parses an 8-byte Chunk Index write. ErrBadFrameLength
// is returned for any other length.
func DecodeChunkIndices(b []byte) (ChunkIndices, error) {
	if len(b) != 8 {
		return ChunkIndices{}, ErrBadFrameLength
	}
	return ChunkIndices{
		HeaderIndex: binary.LittleEndian.Uint32(b[0:4]),
		BodyIndex:   binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// StatusFrame is the 3-byte payload delivered on reads of, and
// notifications from, the HTTP Status Code characteristic.
type StatusFrame struct {
	Status          uint16
	TruncationFlags byte
}

// Encode returns the 3-byte wire encoding of f.
func (f StatusFrame) Encode() []byte {
	b := make([]byte, 3)
	binary.LittleEndian.PutUint16(b[0:2], f.Status)
	b[2] = f.TruncationFlags
	return b
}

// MTUSizes is the 12-byte payload read from the MTU Sizes characteristic.
type MTUSizes struct {
	ResponseHeadersLen uint32
	ResponseBodyLen    uint32
	ChunkSize          uint32
}

// Encode returns the 12-byte wire encoding of m.
func (m MTUSizes) Encode() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], m.ResponseHeadersLen)
	binary.LittleEndian.PutUint32(b[4:8], m.ResponseBodyLen)
	binary.LittleEndian.PutUint32(b[8:12], m.ChunkSize)
	return b
}

// EncodeTLSVerify returns the 1-byte wire encoding of the HTTPS Security
// characteristic's value.
func EncodeTLSVerify(verify bool) []byte {
	if verify {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeTLSVerify parses a 1-byte HTTPS Security write. ErrBadFrameLength
// is returned for any other length.
func DecodeTLSVerify(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, ErrBadFrameLength
	}
	return b[0] != 0, nil
}

// ComputeTruncationFlags reports which response buffers exceed chunkSize.
func ComputeTruncationFlags(headersLen, bodyLen int, chunkSize uint32) byte {
	var flags byte
	if uint32(headersLen) > chunkSize {
		flags |= TruncatedHeaders
	}
	if uint32(bodyLen) > chunkSize {
		flags |= TruncatedBody
	}
	return flags
}
