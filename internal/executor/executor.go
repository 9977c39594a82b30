// Package executor implements the HTTP Executor (HE): given a Session
// snapshot and a Control Point opcode, it issues exactly one HTTP or HTTPS
// request and normalizes the result into the byte buffers the Session
// expects.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/op/go-logging"

	"github.com/muneale/hps-ble/internal/hps"
)

// Result is the normalized outcome of a single HTTP exchange, ready to be
// written back into the Session by the Control Point Dispatcher.
type Result struct {
	Status  uint16
	Headers []byte
	Body    []byte
}

// Executor performs one HTTP/HTTPS call at a time via net/http.
type Executor struct {
	log *logging.Logger
}

// New returns an Executor that logs failures through log.
func New(log *logging.Logger) *Executor {
	return &Executor{log: log}
}

// Execute issues the request described by snap and op, enforcing
// snap.RequestTimeout as a wall-clock deadline. ctx carries cancellation
// from a Control Point CANCEL write or a disconnect.
func (e *Executor) Execute(ctx context.Context, snap hps.RequestSnapshot, op hps.Opcode) (Result, error) {
	method, ok := op.Method()
	if !ok {
		return Result{}, hps.ErrBadOpcode
	}

	target, err := resolveURL(string(snap.URI), op)
	if err != nil {
		e.log.Warning("hps: invalid URI: ", err)
		return Result{}, hps.ErrURIInvalid
	}

	header, err := parseHeaderBlock(snap.Headers)
	if err != nil {
		e.log.Warning("hps: malformed request header block: ", err)
		return Result{}, hps.ErrURIInvalid
	}

	var bodyReader io.Reader
	if op.SendsBody() && len(snap.Body) > 0 {
		bodyReader = bytes.NewReader(snap.Body)
	}

	timeout := time.Duration(snap.RequestTimeout) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, bodyReader)
	if err != nil {
		e.log.Warning("hps: could not build request: ", err)
		return Result{}, hps.ErrURIInvalid
	}
	req.Header = header

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !snap.TLSVerify},
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.log.Error("hps: error reading response body: ", err)
		return Result{}, classifyError(err)
	}

	var headerBuf bytes.Buffer
	if err := resp.Header.Write(&headerBuf); err != nil {
		e.log.Error("hps: error serializing response headers: ", err)
		return Result{}, err
	}
	headerBuf.WriteString("\r\n")

	return Result{
		Status:  uint16(resp.StatusCode),
		Headers: headerBuf.Bytes(),
		Body:    body,
	}, nil
}

// resolveURL prefers the stored URI's own scheme; if it has none, the
// opcode's implied scheme is prepended.
func resolveURL(raw string, op hps.Opcode) (string, error) {
	if raw == "" {
		return "", errors.New("empty URI")
	}
	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.Host == "" {
			return "", errors.New("URI has a scheme but no host")
		}
		return raw, nil
	}
	scheme, ok := op.Scheme()
	if !ok {
		return "", errors.New("no scheme implied by opcode")
	}
	full := scheme + "://" + raw
	u, err = url.Parse(full)
	if err != nil || u.Host == "" {
		return "", errors.New("URI has no usable host")
	}
	return full, nil
}

// parseHeaderBlock parses a CRLF-separated "Name: Value" header block. An
// empty block is a legal, empty header set.
func parseHeaderBlock(block []byte) (http.Header, error) {
	if len(block) == 0 {
		return make(http.Header), nil
	}
	if !bytes.HasSuffix(block, []byte("\r\n\r\n")) {
		block = append(append([]byte{}, block...), '\r', '\n', '\r', '\n')
	}
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))
	mh, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, err
	}
	return http.Header(mh), nil
}

// classifyError maps a net/http failure onto a sentinel error. The central
// never observes which one fired -- all of them collapse to status=0 -- but
// the distinction drives the log line.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return hps.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return hps.ErrCancelled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return hps.ErrDNSFailed
	}

	var certErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) {
		return hps.ErrTLSFailed
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return hps.ErrTLSFailed
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return hps.ErrTimeout
		}
		return hps.ErrConnectFailed
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return hps.ErrTimeout
		}
		return classifyError(urlErr.Err)
	}

	return hps.ErrConnectFailed
}
