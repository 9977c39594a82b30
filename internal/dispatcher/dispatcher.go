// Package dispatcher implements the Control Point Dispatcher (CPD): the
// Idle/Running/Completed state machine triggered by writes to the HTTP
// Control Point characteristic.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"

	"github.com/muneale/hps-ble/internal/executor"
	"github.com/muneale/hps-ble/internal/hps"
)

// State is the dispatcher's externally-observable state.
type State int32

const (
	Idle State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Recorder receives dispatcher telemetry. internal/metrics implements this;
// a nil Recorder passed to New falls back to a no-op so the dispatcher
// never needs a nil check at the call site.
type Recorder interface {
	ObserveDispatch(op hps.Opcode, outcome string, duration time.Duration)
	SetState(s State)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDispatch(hps.Opcode, string, time.Duration) {}
func (nopRecorder) SetState(State)                                   {}

// Dispatcher owns the single-slot pending-opcode register and the
// in-flight request's cancel func. It never runs more than one HTTP
// exchange at a time; a second opcode written while Running is queued
// rather than rejected.
type Dispatcher struct {
	session *hps.Session
	exec    *executor.Executor
	log     *logging.Logger
	rec     Recorder

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	pending *hps.Opcode

	notify func(hps.StatusFrame)
}

// New builds a Dispatcher in the Idle state. rec may be nil.
func New(session *hps.Session, exec *executor.Executor, log *logging.Logger, rec Recorder) *Dispatcher {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Dispatcher{
		session: session,
		exec:    exec,
		log:     log,
		rec:     rec,
		notify:  func(hps.StatusFrame) {},
	}
}

// SetNotifier registers the sink that receives a Status Code frame whenever
// a dispatch completes or is cancelled.
func (d *Dispatcher) SetNotifier(fn func(hps.StatusFrame)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		fn = func(hps.StatusFrame) {}
	}
	d.notify = fn
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dispatch handles one Control Point write. It never blocks on network
// I/O: a dispatchable opcode starts (or queues) the HTTP exchange on its
// own goroutine and returns immediately.
func (d *Dispatcher) Dispatch(op hps.Opcode) error {
	if !op.Valid() {
		return hps.ErrBadOpcode
	}

	d.mu.Lock()

	if op == hps.OpCancel {
		switch d.state {
		case Idle:
			d.mu.Unlock()
			return nil
		default: // Running or Completed-in-transit
			if d.cancel != nil {
				d.cancel()
			}
			d.pending = nil
			d.mu.Unlock()
			return nil
		}
	}

	// op.Valid() and the OpCancel branch above together guarantee op is
	// dispatchable from here on.
	if d.state == Running {
		opCopy := op
		d.pending = &opCopy
		d.mu.Unlock()
		return nil
	}

	d.state = Running
	d.rec.SetState(Running)
	snap := d.session.Snapshot()
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	go d.run(ctx, snap, op)
	return nil
}

// Cancel aborts any in-flight request. The GATT layer calls this on
// disconnect, the same path as an 0x0B write.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.pending = nil
	d.mu.Unlock()
}

// run executes one HTTP exchange, stores or clears the response, emits the
// Status Code notification, and -- if a queued opcode is waiting -- starts
// the next exchange before returning to Idle.
func (d *Dispatcher) run(ctx context.Context, snap hps.RequestSnapshot, op hps.Opcode) {
	corrID := uuid.NewV4()
	start := time.Now()
	d.log.Debugf("hps[%s]: dispatching opcode %02x", corrID, op)

	res, err := d.exec.Execute(ctx, snap, op)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		d.log.Errorf("hps[%s]: execution failed: %v", corrID, err)
		d.session.ClearResponse()
	} else {
		d.log.Debugf("hps[%s]: execution succeeded, status=%d", corrID, res.Status)
		d.session.StoreResponse(res.Status, res.Headers, res.Body)
	}
	d.rec.ObserveDispatch(op, outcome, time.Since(start))

	frame := d.session.StatusFrame()

	d.mu.Lock()
	d.cancel = nil
	d.state = Completed
	d.rec.SetState(Completed)
	next := d.pending
	d.pending = nil

	var nextSnap hps.RequestSnapshot
	var nextCtx context.Context
	var nextCancel context.CancelFunc
	if next != nil {
		nextSnap = d.session.Snapshot()
		nextCtx, nextCancel = context.WithCancel(context.Background())
		d.cancel = nextCancel
		d.state = Running
		d.rec.SetState(Running)
	} else {
		d.state = Idle
		d.rec.SetState(Idle)
	}
	notify := d.notify
	d.mu.Unlock()

	notify(frame)

	if next != nil {
		go d.run(nextCtx, nextSnap, *next)
	}
}
