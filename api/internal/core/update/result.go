package update

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Outcome is how a runtime operation ended. Timeout and cancellation are
// outcomes in their own right, not failure subtypes.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeCancelled
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTimeout:
		return "timeout"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is the outcome of one runtime operation.
type Result struct {
	Outcome Outcome
	Err     error
	Value   any
}

func Succeeded(v any) Result     { return Result{Outcome: OutcomeSuccess, Value: v} }
func Failed(err error) Result    { return Result{Outcome: OutcomeFailure, Err: err} }
func Cancelled(err error) Result { return Result{Outcome: OutcomeCancelled, Err: err} }
func TimedOut(err error) Result  { return Result{Outcome: OutcomeTimeout, Err: err} }

func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// ResultHandler receives the asynchronous outcomes of runtime operations.
type ResultHandler interface {
	HandleResult(param any, result Result)
	HandleRollbackResult(param any, result Result)
}

// OnceHandler guarantees that the wrapped handler sees at most one forward
// outcome and at most one rollback outcome. Later deliveries are dropped.
type OnceHandler struct {
	next ResultHandler

	forward  sync.Once
	rollback sync.Once

	forwardSeen  atomic.Bool
	rollbackSeen atomic.Bool
}

func NewOnceHandler(next ResultHandler) *OnceHandler {
	return &OnceHandler{next: next}
}

func (h *OnceHandler) HandleResult(param any, result Result) {
	h.forward.Do(func() {
		h.forwardSeen.Store(true)
		if h.next != nil {
			h.next.HandleResult(param, result)
		}
	})
}

func (h *OnceHandler) HandleRollbackResult(param any, result Result) {
	h.rollback.Do(func() {
		h.rollbackSeen.Store(true)
		if h.next != nil {
			h.next.HandleRollbackResult(param, result)
		}
	})
}

func (h *OnceHandler) ForwardReported() bool  { return h.forwardSeen.Load() }
func (h *OnceHandler) RollbackReported() bool { return h.rollbackSeen.Load() }

// AsRollback routes forward outcomes of a compensating update to the
// rollback side of h.
func AsRollback(h ResultHandler) ResultHandler {
	return rollbackHandler{h}
}

type rollbackHandler struct{ next ResultHandler }

func (r rollbackHandler) HandleResult(param any, result Result) {
	r.next.HandleRollbackResult(param, result)
}

func (r rollbackHandler) HandleRollbackResult(param any, result Result) {
	r.next.HandleRollbackResult(param, result)
}

// ChanHandler delivers forward outcomes to a buffered channel without ever
// blocking. Anything past the first outcome is dropped.
type ChanHandler chan Result

func NewChanHandler() ChanHandler { return make(ChanHandler, 1) }

func (c ChanHandler) HandleResult(_ any, result Result) {
	select {
	case c <- result:
	default:
	}
}

func (c ChanHandler) HandleRollbackResult(param any, result Result) { c.HandleResult(param, result) }

// listen adapts a service listener to a result handler: the expected event
// is a success, a cancellation is a cancellation, anything else a failure.
func listen(handler ResultHandler, param any, want ServiceEvent) ServiceListener {
	return func(name string, event ServiceEvent, err error) {
		switch {
		case event == want:
			handler.HandleResult(param, Succeeded(name))
		case event == ServiceCancelled:
			handler.HandleResult(param, Cancelled(err))
		default:
			if err == nil {
				err = fmt.Errorf("service %s: expected %s, got %s", name, want, event)
			}
			handler.HandleResult(param, Failed(err))
		}
	}
}
