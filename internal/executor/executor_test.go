package executor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/op/go-logging"

	"github.com/muneale/hps-ble/internal/hps"
)

func testLogger() *logging.Logger {
	return logging.MustGetLogger("executor_test")
}

func TestExecuteGetReceivesStoredURI(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	e := New(testLogger())
	snap := hps.RequestSnapshot{
		URI:            []byte(srv.URL + "/widgets"),
		TLSVerify:      true,
		RequestTimeout: 5,
	}
	res, err := e.Execute(context.Background(), snap, hps.OpHTTPGet)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/widgets" {
		t.Fatalf("server saw path %q, want /widgets", gotPath)
	}
	if res.Status != 200 {
		t.Fatalf("status = %d, want 200", res.Status)
	}
	if string(res.Body) != "hello" {
		t.Fatalf("body = %q, want %q", res.Body, "hello")
	}
	if !strings.Contains(string(res.Headers), "Content-Type: text/plain") {
		t.Fatalf("headers missing Content-Type: %q", res.Headers)
	}
	if !strings.HasSuffix(string(res.Headers), "\r\n\r\n") {
		t.Fatalf("headers must end with a blank line, got %q", res.Headers)
	}
}

func TestExecutePostSendsBody(t *testing.T) {
	var gotBody []byte
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	e := New(testLogger())
	snap := hps.RequestSnapshot{
		URI:            []byte(srv.URL),
		Body:           []byte(`{"x":1}`),
		TLSVerify:      true,
		RequestTimeout: 5,
	}
	res, err := e.Execute(context.Background(), snap, hps.OpHTTPPost)
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != "POST" {
		t.Fatalf("method = %q, want POST", gotMethod)
	}
	if string(gotBody) != `{"x":1}` {
		t.Fatalf("server received body %q", gotBody)
	}
	if res.Status != 201 {
		t.Fatalf("status = %d, want 201", res.Status)
	}
}

func TestExecuteHeadSendsNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "HEAD" {
			t.Errorf("method = %q, want HEAD", r.Method)
		}
		if b, _ := io.ReadAll(r.Body); len(b) != 0 {
			t.Errorf("server received body %q, want none", b)
		}
	}))
	defer srv.Close()

	e := New(testLogger())
	snap := hps.RequestSnapshot{URI: []byte(srv.URL), Body: []byte("ignored"), TLSVerify: true, RequestTimeout: 5}
	if _, err := e.Execute(context.Background(), snap, hps.OpHTTPHead); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteMissingSchemeUsesOpcode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bare := strings.TrimPrefix(srv.URL, "http://")
	e := New(testLogger())
	snap := hps.RequestSnapshot{URI: []byte(bare), TLSVerify: true, RequestTimeout: 5}
	if _, err := e.Execute(context.Background(), snap, hps.OpHTTPGet); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteMalformedURIReturnsURIInvalid(t *testing.T) {
	e := New(testLogger())
	snap := hps.RequestSnapshot{URI: []byte(""), TLSVerify: true, RequestTimeout: 5}
	_, err := e.Execute(context.Background(), snap, hps.OpHTTPGet)
	if err != hps.ErrURIInvalid {
		t.Fatalf("err = %v, want ErrURIInvalid", err)
	}
}

func TestExecuteConnectionRefusedMapsToConnectFailed(t *testing.T) {
	e := New(testLogger())
	// Port 1 is reserved and nothing listens there.
	snap := hps.RequestSnapshot{URI: []byte("http://127.0.0.1:1/"), TLSVerify: true, RequestTimeout: 2}
	_, err := e.Execute(context.Background(), snap, hps.OpHTTPGet)
	if err != hps.ErrConnectFailed {
		t.Fatalf("err = %v, want ErrConnectFailed connecting to a closed port", err)
	}
}

func TestExecuteRequestHeadersArePassedThrough(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New(testLogger())
	snap := hps.RequestSnapshot{
		URI:            []byte(srv.URL),
		Headers:        []byte("X-Test: marker\r\n\r\n"),
		TLSVerify:      true,
		RequestTimeout: 5,
	}
	if _, err := e.Execute(context.Background(), snap, hps.OpHTTPGet); err != nil {
		t.Fatal(err)
	}
	if gotHeader != "marker" {
		t.Fatalf("server saw X-Test = %q, want marker", gotHeader)
	}
}
