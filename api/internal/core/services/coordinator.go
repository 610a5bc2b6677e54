package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/update"
)

// BatchState is the state of one batch of server model updates.
type BatchState int

const (
	StateActive BatchState = iota
	StateMarkedRollback
	StateRollingBack
	StateCommitting
	StateCommitted
	StateRolledBack
)

func (s BatchState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateMarkedRollback:
		return "MARKED_ROLLBACK"
	case StateRollingBack:
		return "ROLLING_BACK"
	case StateCommitting:
		return "COMMITING"
	case StateCommitted:
		return "COMMITTED"
	case StateRolledBack:
		return "ROLLED_BACK"
	}
	return fmt.Sprintf("BatchState(%d)", int(s))
}

func (s BatchState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition can happen.
func (s BatchState) Terminal() bool { return s == StateCommitted || s == StateRolledBack }

// UpdateRecord is what happened to one update of a batch.
type UpdateRecord struct {
	Index           int    `json:"index"`
	Update          string `json:"update"`
	Applied         bool   `json:"applied"`
	Dispatched      bool   `json:"dispatched"`
	RestartRequired bool   `json:"restart_required"`
	Outcome         string `json:"outcome,omitempty"`
	Error           string `json:"error,omitempty"`
	Rollback        string `json:"rollback,omitempty"`
	RollbackError   string `json:"rollback_error,omitempty"`
}

func (r *UpdateRecord) forward(res update.Result) {
	r.Outcome = res.Outcome.String()
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
}

func (r *UpdateRecord) backward(res update.Result) {
	r.Rollback = res.Outcome.String()
	if res.Err != nil {
		r.RollbackError = res.Err.Error()
	}
}

// BatchReport is the full account of one coordinator run.
type BatchReport struct {
	ID         uuid.UUID      `json:"id"`
	Host       string         `json:"host"`
	Server     string         `json:"server"`
	Trigger    string         `json:"trigger,omitempty"`
	State      BatchState     `json:"state"`
	Trail      []BatchState   `json:"trail"`
	Records    []UpdateRecord `json:"records"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

func (b *BatchReport) moveTo(s BatchState) {
	b.State = s
	b.Trail = append(b.Trail, s)
}

// Failed reports whether any forward update did not succeed.
func (b *BatchReport) Failed() bool {
	for _, r := range b.Records {
		if r.Outcome != "" && r.Outcome != update.OutcomeSuccess.String() {
			return true
		}
	}
	return false
}

// RestartRequired reports whether a change is waiting for the next server start.
func (b *BatchReport) RestartRequired() bool {
	if b.State == StateRolledBack {
		return false
	}
	for _, r := range b.Records {
		if r.RestartRequired {
			return true
		}
	}
	return false
}

// RollbackFailures counts compensations that did not succeed.
func (b *BatchReport) RollbackFailures() int {
	n := 0
	for _, r := range b.Records {
		if r.Rollback != "" && r.Rollback != update.OutcomeSuccess.String() {
			n++
		}
	}
	return n
}

// Coordinator runs batches of server model updates against a model and its
// live runtime, rolling the whole batch back on the first failure.
type Coordinator struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewCoordinator(timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{timeout: timeout, logger: logger}
}

type appliedUpdate struct {
	index      int
	comp       update.Update[*domain.ServerModel]
	dispatched bool
	handler    *update.OnceHandler
}

// Run applies updates in order. Each update is applied to target, then, when
// the context permits it, pushed to the runtime and awaited before the next
// one is started. handler, if not nil, sees one forward outcome per attempted
// update and one rollback outcome per compensated update.
func (c *Coordinator) Run(
	ctx context.Context,
	target *domain.ServerModel,
	updates []update.ServerModelUpdate,
	uctx update.UpdateContext,
	handler update.ResultHandler,
) *BatchReport {
	report := &BatchReport{
		ID:        uuid.New(),
		Host:      target.HostName(),
		Server:    target.ServerName(),
		StartedAt: time.Now().UTC(),
		Records:   make([]UpdateRecord, 0, len(updates)),
	}
	report.moveTo(StateActive)
	uctx = uctx.WithContext(ctx)

	var (
		done       []appliedUpdate
		failed     bool
		failedComp update.Update[*domain.ServerModel]
	)

	// 1. Forward pass
	for i, u := range updates {
		rec := UpdateRecord{Index: i, Update: u.String()}
		once := update.NewOnceHandler(handler)

		comp := u.Compensate(target)
		if err := u.Apply(target); err != nil {
			res := update.Failed(err)
			once.HandleResult(i, res)
			rec.forward(res)
			report.Records = append(report.Records, rec)
			failed = true
			break
		}
		rec.Applied = true

		res := update.Succeeded(nil)
		live := uctx.RuntimeUpdatesAllowed() && (uctx.Booting() || !u.RequiresRestart())
		if live {
			rec.Dispatched = true
			res = c.dispatch(ctx, uctx, u, i)
		} else if uctx.RuntimeUpdatesAllowed() && u.RequiresRestart() {
			rec.RestartRequired = true
		}
		once.HandleResult(i, res)
		rec.forward(res)
		report.Records = append(report.Records, rec)

		if !res.OK() {
			failed = true
			failedComp = comp
			break
		}
		done = append(done, appliedUpdate{index: i, comp: comp, dispatched: live, handler: once})
	}

	if !failed {
		report.moveTo(StateCommitting)
		report.moveTo(StateCommitted)
		return c.finish(report)
	}

	// 2. The failed update never took effect
	report.moveTo(StateMarkedRollback)
	if failedComp != nil {
		if err := failedComp.Apply(target); err != nil {
			c.logger.Error("could not revert failed update in model",
				slog.String("server", report.Server), slog.Any("error", err))
		}
	}

	if !uctx.RollbackAllowed() {
		report.moveTo(StateCommitting)
		report.moveTo(StateCommitted)
		return c.finish(report)
	}

	// 3. Compensate every applied update, newest first
	report.moveTo(StateRollingBack)
	rctx := context.WithoutCancel(ctx)
	ructx := uctx.WithContext(rctx)
	for j := len(done) - 1; j >= 0; j-- {
		a := done[j]
		res := c.compensate(rctx, ructx, target, a)
		report.Records[a.index].backward(res)
		update.AsRollback(a.handler).HandleResult(a.index, res)
		if !res.OK() {
			c.logger.Warn("compensation failed",
				slog.String("server", report.Server),
				slog.String("update", report.Records[a.index].Update),
				slog.Any("error", res.Err))
		}
	}

	report.moveTo(StateCommitting)
	report.moveTo(StateRolledBack)
	return c.finish(report)
}

func (c *Coordinator) compensate(ctx context.Context, uctx update.UpdateContext, target *domain.ServerModel, a appliedUpdate) update.Result {
	if a.comp == nil {
		return update.Succeeded(nil)
	}
	if err := a.comp.Apply(target); err != nil {
		return update.Failed(err)
	}
	mu, ok := a.comp.(update.ServerModelUpdate)
	if !ok || !a.dispatched {
		return update.Succeeded(nil)
	}
	return c.dispatch(ctx, uctx, mu, a.index)
}

// dispatch pushes u into the runtime and waits for its outcome, a timeout or
// cancellation, whichever comes first. Outcomes arriving later are dropped.
func (c *Coordinator) dispatch(ctx context.Context, uctx update.UpdateContext, u update.ServerModelUpdate, param any) update.Result {
	ch := update.NewChanHandler()
	u.ApplyToRuntime(uctx, ch, param)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res
	case <-timer.C:
		return update.TimedOut(fmt.Errorf("%s: no outcome after %s", u, c.timeout))
	case <-ctx.Done():
		return update.Cancelled(ctx.Err())
	}
}

func (c *Coordinator) finish(report *BatchReport) *BatchReport {
	report.FinishedAt = time.Now().UTC()
	c.logger.Info("batch finished",
		slog.String("batch", report.ID.String()),
		slog.String("server", report.Server),
		slog.String("state", report.State.String()),
		slog.Int("updates", len(report.Records)))
	return report
}
