package gattserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/currantlabs/ble"
	"github.com/op/go-logging"

	"github.com/muneale/hps-ble/internal/dispatcher"
	"github.com/muneale/hps-ble/internal/executor"
	"github.com/muneale/hps-ble/internal/hps"
)

func testLogger() *logging.Logger {
	return logging.MustGetLogger("gattserver_test")
}

func newTestServer() (*Server, *hps.Session, *dispatcher.Dispatcher) {
	session := hps.NewSession(128, 60)
	disp := dispatcher.New(session, executor.New(testLogger()), testLogger(), nil)
	srv := New(Config{Name: "test-hps"}, session, disp, testLogger())
	return srv, session, disp
}

func newResponseWriter(capacity int) (ble.ResponseWriter, *bytes.Buffer) {
	buf := bytes.NewBuffer(make([]byte, 0, capacity))
	return ble.NewResponseWriter(buf), buf
}

func TestHandleURIWriteStoresExactBytes(t *testing.T) {
	srv, session, _ := newTestServer()
	req := ble.NewRequest(nil, []byte("http://example.invalid/widgets"), 0)
	rsp, _ := newResponseWriter(0)

	srv.handleURIWrite(req, rsp)

	snap := session.Snapshot()
	if string(snap.URI) != "http://example.invalid/widgets" {
		t.Fatalf("stored URI = %q", snap.URI)
	}
}

func TestHandleChunkIndexWriteBadLength(t *testing.T) {
	srv, _, _ := newTestServer()
	req := ble.NewRequest(nil, []byte{1, 2, 3}, 0)
	rsp, _ := newResponseWriter(0)

	srv.handleChunkIndexWrite(req, rsp)

	if rsp.Status() != ble.ErrInvalAttrValueLen {
		t.Fatalf("status = %v, want ErrInvalAttrValueLen", rsp.Status())
	}
}

func TestHandleChunkIndexRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer()
	writeReq := ble.NewRequest(nil, hps.ChunkIndices{HeaderIndex: 2, BodyIndex: 9}.Encode(), 0)
	writeRsp, _ := newResponseWriter(0)
	srv.handleChunkIndexWrite(writeReq, writeRsp)

	readReq := ble.NewRequest(nil, nil, 0)
	readRsp, buf := newResponseWriter(8)
	srv.handleChunkIndexRead(readReq, readRsp)

	want := hps.ChunkIndices{HeaderIndex: 2, BodyIndex: 9}.Encode()
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestHandleSecurityWriteBadLengthRejected(t *testing.T) {
	srv, _, _ := newTestServer()
	req := ble.NewRequest(nil, []byte{1, 1}, 0)
	rsp, _ := newResponseWriter(0)

	srv.handleSecurityWrite(req, rsp)

	if rsp.Status() != ble.ErrInvalAttrValueLen {
		t.Fatalf("status = %v, want ErrInvalAttrValueLen", rsp.Status())
	}
}

func TestHandleSecurityReadDefaultsToVerifyOn(t *testing.T) {
	srv, _, _ := newTestServer()
	req := ble.NewRequest(nil, nil, 0)
	rsp, buf := newResponseWriter(1)

	srv.handleSecurityRead(req, rsp)

	if !bytes.Equal(buf.Bytes(), []byte{1}) {
		t.Fatalf("got % X, want [01] (tls_verify defaults true)", buf.Bytes())
	}
}

func TestHandleControlPointWriteBadOpcodeRejected(t *testing.T) {
	srv, _, _ := newTestServer()
	req := ble.NewRequest(nil, []byte{0xFF}, 0)
	rsp, _ := newResponseWriter(0)

	srv.handleControlPointWrite(req, rsp)

	if rsp.Status() != ble.ErrReqNotSupp {
		t.Fatalf("status = %v, want ErrReqNotSupp", rsp.Status())
	}
}

func TestHandleControlPointWriteBadLengthRejected(t *testing.T) {
	srv, _, _ := newTestServer()
	req := ble.NewRequest(nil, []byte{0x01, 0x02}, 0)
	rsp, _ := newResponseWriter(0)

	srv.handleControlPointWrite(req, rsp)

	if rsp.Status() != ble.ErrInvalAttrValueLen {
		t.Fatalf("status = %v, want ErrInvalAttrValueLen", rsp.Status())
	}
}

func TestHandleStatusNotifyResetsSessionOnUnsubscribe(t *testing.T) {
	srv, session, disp := newTestServer()
	session.StoreResponse(200, []byte("h"), []byte("b"))

	sent := make(chan []byte, 4)
	n := ble.NewNotifier(func(b []byte) (int, error) {
		sent <- b
		return len(b), nil
	})

	done := make(chan struct{})
	go func() {
		srv.handleStatusNotify(ble.NewRequest(nil, nil, 0), n)
		close(done)
	}()

	// give the notify goroutine a moment to register itself before we
	// unsubscribe. The cancel below arrives while Idle, so it is a no-op and
	// sends no notification.
	time.Sleep(10 * time.Millisecond)
	if err := disp.Dispatch(hps.OpCancel); err != nil {
		t.Fatal(err)
	}

	n.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleStatusNotify did not return after Close")
	}

	frame := session.StatusFrame()
	if frame.Status != hps.StatusSentinel {
		t.Fatalf("status = %d, want sentinel after disconnect reset", frame.Status)
	}
}
