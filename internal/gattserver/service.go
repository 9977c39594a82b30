// Package gattserver is the GATT Application Assembler (GAA) and
// Characteristic Handlers (CH): it builds the HTTP Proxy Service's eight
// characteristics on top of currantlabs/ble, registers them, and drives
// advertising.
package gattserver

import (
	"context"
	"time"

	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/examples/lib/gatt"
	"github.com/op/go-logging"

	"github.com/muneale/hps-ble/internal/dispatcher"
	"github.com/muneale/hps-ble/internal/hps"
)

// UUIDs from the HPS 1.0 characteristic set, plus the two auxiliary
// chunking characteristics (Chunk Index, MTU Sizes).
const (
	serviceUUID       = "1823"
	uriCharUUID       = "2AB6"
	headersCharUUID   = "2AB7"
	statusCharUUID    = "2AB8"
	bodyCharUUID      = "2AB9"
	controlPointUUID  = "2ABA"
	securityCharUUID  = "2ABB"
	chunkIndexUUID    = "2A9A"
	mtuSizesCharUUID  = "2AC0"
)

// retryBackoff is how long Run waits before retrying a failed
// registration or advertisement attempt.
const retryBackoff = 10 * time.Second

// Config carries the operator-facing knobs from cmd/hpsd.
type Config struct {
	// Name is the advertised local name.
	Name string
}

// ResolveChunkSize is the GAA's chunk-size policy: a non-zero --mtu
// override wins, otherwise fall back to the default, unnegotiated ATT
// MTU minus its 3-byte header (ble.DefaultMTU - 3). The caller resolves
// this once at startup and hands the result to hps.NewSession; the MTU
// negotiated on a connection is not consulted.
func ResolveChunkSize(mtuOverride uint32) uint32 {
	if mtuOverride != 0 {
		return mtuOverride
	}
	return uint32(ble.DefaultMTU - 3)
}

// Server owns the ble.Service and the characteristic handlers that read
// and write through Session and Dispatcher.
type Server struct {
	cfg      Config
	session  *hps.Session
	dispatch *dispatcher.Dispatcher
	log      *logging.Logger
	service  *ble.Service
}

// New builds the HPS service definition. It does not register or
// advertise; call Run for that.
func New(cfg Config, session *hps.Session, d *dispatcher.Dispatcher, log *logging.Logger) *Server {
	s := &Server{cfg: cfg, session: session, dispatch: d, log: log}
	s.service = s.buildService()
	return s
}

func (s *Server) buildService() *ble.Service {
	svc := ble.NewService(ble.MustParse(serviceUUID))

	uri := ble.NewCharacteristic(ble.MustParse(uriCharUUID))
	uri.HandleWrite(ble.WriteHandlerFunc(s.handleURIWrite))
	svc.AddCharacteristic(uri)

	headers := ble.NewCharacteristic(ble.MustParse(headersCharUUID))
	headers.HandleRead(ble.ReadHandlerFunc(s.handleHeadersRead))
	headers.HandleWrite(ble.WriteHandlerFunc(s.handleHeadersWrite))
	svc.AddCharacteristic(headers)

	status := ble.NewCharacteristic(ble.MustParse(statusCharUUID))
	status.HandleRead(ble.ReadHandlerFunc(s.handleStatusRead))
	status.HandleNotify(ble.NotifyHandlerFunc(s.handleStatusNotify))
	svc.AddCharacteristic(status)

	body := ble.NewCharacteristic(ble.MustParse(bodyCharUUID))
	body.HandleRead(ble.ReadHandlerFunc(s.handleBodyRead))
	body.HandleWrite(ble.WriteHandlerFunc(s.handleBodyWrite))
	svc.AddCharacteristic(body)

	controlPoint := ble.NewCharacteristic(ble.MustParse(controlPointUUID))
	controlPoint.HandleWrite(ble.WriteHandlerFunc(s.handleControlPointWrite))
	svc.AddCharacteristic(controlPoint)

	security := ble.NewCharacteristic(ble.MustParse(securityCharUUID))
	security.HandleRead(ble.ReadHandlerFunc(s.handleSecurityRead))
	security.HandleWrite(ble.WriteHandlerFunc(s.handleSecurityWrite))
	svc.AddCharacteristic(security)

	chunkIndex := ble.NewCharacteristic(ble.MustParse(chunkIndexUUID))
	chunkIndex.HandleRead(ble.ReadHandlerFunc(s.handleChunkIndexRead))
	chunkIndex.HandleWrite(ble.WriteHandlerFunc(s.handleChunkIndexWrite))
	svc.AddCharacteristic(chunkIndex)

	mtuSizes := ble.NewCharacteristic(ble.MustParse(mtuSizesCharUUID))
	mtuSizes.HandleRead(ble.ReadHandlerFunc(s.handleMTUSizesRead))
	svc.AddCharacteristic(mtuSizes)

	return svc
}

// Run registers the service and advertises until ctx is cancelled,
// retrying with a backoff on failure the way the teacher's bluetoothMain
// retries gatt.AddService/AdvertiseNameAndServices.
func (s *Server) Run(ctx context.Context) error {
	for {
		if err := gatt.AddService(s.service); err != nil {
			s.log.Errorf("hps: can't add service: %v", err)
			gatt.RemoveAllServices()
			if !sleepOrDone(ctx, retryBackoff) {
				return ctx.Err()
			}
			continue
		}
		if err := gatt.AdvertiseNameAndServices(s.cfg.Name, s.service.UUID); err != nil {
			s.log.Errorf("hps: can't advertise: %v", err)
			gatt.RemoveAllServices()
			if !sleepOrDone(ctx, retryBackoff) {
				return ctx.Err()
			}
			continue
		}
		s.log.Noticef("hps: advertising as %q", s.cfg.Name)
		<-ctx.Done()
		gatt.RemoveAllServices()
		return ctx.Err()
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
