package gattserver

import (
	"github.com/currantlabs/ble"

	"github.com/muneale/hps-ble/internal/hps"
)

func (s *Server) handleURIWrite(req ble.Request, rsp ble.ResponseWriter) {
	s.session.SetURI(req.Data())
}

func (s *Server) handleHeadersRead(req ble.Request, rsp ble.ResponseWriter) {
	idx := s.session.ChunkIndices()
	rsp.Write(s.session.SliceChunk(hps.HeaderBuffer, idx.HeaderIndex))
}

func (s *Server) handleHeadersWrite(req ble.Request, rsp ble.ResponseWriter) {
	s.session.SetRequestHeaders(req.Data())
}

func (s *Server) handleStatusRead(req ble.Request, rsp ble.ResponseWriter) {
	rsp.Write(s.session.StatusFrame().Encode())
}

// handleStatusNotify blocks for the lifetime of the subscription, the way
// the teacher's notify loop blocks on n.Context().Done(); unsubscribe or
// disconnect resets the response half of the session.
func (s *Server) handleStatusNotify(req ble.Request, n ble.Notifier) {
	s.dispatch.SetNotifier(func(frame hps.StatusFrame) {
		if _, err := n.Write(frame.Encode()); err != nil {
			s.log.Warningf("hps: status notify failed: %v", err)
		}
	})

	<-n.Context().Done()

	s.dispatch.SetNotifier(nil)
	s.dispatch.Cancel()
	s.session.ClearResponse()
	s.log.Info("hps: central disconnected; response state reset")
}

func (s *Server) handleBodyRead(req ble.Request, rsp ble.ResponseWriter) {
	idx := s.session.ChunkIndices()
	rsp.Write(s.session.SliceChunk(hps.BodyBuffer, idx.BodyIndex))
}

func (s *Server) handleBodyWrite(req ble.Request, rsp ble.ResponseWriter) {
	s.session.SetRequestBody(req.Data())
}

// handleControlPointWrite dispatches the opcode. A bad opcode or frame
// length is rejected at the ATT layer without touching the session.
func (s *Server) handleControlPointWrite(req ble.Request, rsp ble.ResponseWriter) {
	data := req.Data()
	if len(data) != 1 {
		rsp.SetStatus(ble.ErrInvalAttrValueLen)
		return
	}
	if err := s.dispatch.Dispatch(hps.Opcode(data[0])); err != nil {
		rsp.SetStatus(ble.ErrReqNotSupp)
	}
}

// handleSecurityRead returns tls_verify as a single byte.
func (s *Server) handleSecurityRead(req ble.Request, rsp ble.ResponseWriter) {
	rsp.Write(hps.EncodeTLSVerify(s.session.TLSVerify()))
}

// handleSecurityWrite toggles tls_verify; wrong length is rejected.
func (s *Server) handleSecurityWrite(req ble.Request, rsp ble.ResponseWriter) {
	v, err := hps.DecodeTLSVerify(req.Data())
	if err != nil {
		rsp.SetStatus(ble.ErrInvalAttrValueLen)
		return
	}
	s.session.SetTLSVerify(v)
}

// handleChunkIndexRead returns the current 8-byte Chunk Index frame.
func (s *Server) handleChunkIndexRead(req ble.Request, rsp ble.ResponseWriter) {
	rsp.Write(s.session.ChunkIndices().Encode())
}

// handleChunkIndexWrite replaces both indices together; wrong length is
// rejected.
func (s *Server) handleChunkIndexWrite(req ble.Request, rsp ble.ResponseWriter) {
	idx, err := hps.DecodeChunkIndices(req.Data())
	if err != nil {
		rsp.SetStatus(ble.ErrInvalAttrValueLen)
		return
	}
	s.session.SetChunkIndices(idx)
}

// handleMTUSizesRead returns the 12-byte MTU Sizes frame.
func (s *Server) handleMTUSizesRead(req ble.Request, rsp ble.ResponseWriter) {
	rsp.Write(s.session.MTUSizes().Encode())
}
