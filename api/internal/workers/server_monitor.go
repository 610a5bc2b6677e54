package workers

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/irgordon/karidc/api/internal/core/services"
	"github.com/irgordon/karidc/api/internal/core/update"
	"github.com/irgordon/karidc/api/internal/telemetry"
)

// Event types published by the monitor.
const (
	EventServerDegraded  = "server-degraded"
	EventServerRecovered = "server-recovered"
)

// ServerSource is the part of the controller the monitor reads and repairs.
type ServerSource interface {
	HostNames() []string
	Status(host string) ([]services.ServerStatus, error)
	Converge(ctx context.Context, ref services.ServerRef, trigger string) (*services.BatchReport, error)
}

// ServerMonitor sweeps the booted servers. A server whose root service left
// the up state is reported once per transition; an up server whose running
// model drifted from its declaration is converged.
type ServerMonitor struct {
	source      ServerSource
	hub         *telemetry.Hub
	logger      *slog.Logger
	interval    time.Duration
	concurrency int           // 🛡️ SLA: Limit concurrent checks
	jitter      time.Duration // 🛡️ Prevent synchronized spikes

	mu       sync.Mutex
	degraded map[services.ServerRef]string
}

func NewServerMonitor(source ServerSource, hub *telemetry.Hub, logger *slog.Logger, interval time.Duration) *ServerMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerMonitor{
		source:      source,
		hub:         hub,
		logger:      logger,
		interval:    interval,
		concurrency: 10,
		jitter:      time.Second,
		degraded:    make(map[services.ServerRef]string),
	}
}

// WithJitter overrides the random delay before each check.
func (m *ServerMonitor) WithJitter(d time.Duration) *ServerMonitor {
	m.jitter = d
	return m
}

func (m *ServerMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep checks every booted server once.
func (m *ServerMonitor) Sweep(ctx context.Context) {
	var booted []services.ServerStatus
	for _, host := range m.source.HostNames() {
		statuses, err := m.source.Status(host)
		if err != nil {
			m.logger.Error("SLA Breach: failed to list servers", slog.String("host", host), slog.Any("error", err))
			continue
		}
		for _, st := range statuses {
			if st.Booted {
				booted = append(booted, st)
			}
		}
	}

	// 🛡️ SLA: Concurrency control via semaphore
	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for _, st := range booted {
		wg.Add(1)
		go func(st services.ServerStatus) {
			defer wg.Done()

			if m.jitter > 0 {
				select {
				case <-time.After(rand.N(m.jitter)):
				case <-ctx.Done():
					return
				}
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			// 🛡️ Per-check Timeout: one wedged runtime must not hang the sweep
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			m.check(checkCtx, st)
		}(st)
	}
	wg.Wait()
}

func (m *ServerMonitor) check(ctx context.Context, st services.ServerStatus) {
	if st.State != update.StateUp.String() {
		m.handleFailure(st)
		return
	}
	m.handleRecovery(st)

	if st.InSync {
		return
	}
	report, err := m.source.Converge(ctx, st.ServerRef, "monitor")
	if err != nil {
		m.logger.Warn("drift repair failed", slog.String("server", st.ServerRef.String()), slog.Any("error", err))
		return
	}
	if report != nil {
		m.logger.Info("drift repaired",
			slog.String("server", st.ServerRef.String()),
			slog.String("state", report.State.String()),
		)
	}
}

func (m *ServerMonitor) handleFailure(st services.ServerStatus) {
	m.mu.Lock()
	prev, seen := m.degraded[st.ServerRef]
	m.degraded[st.ServerRef] = st.State
	m.mu.Unlock()
	if seen && prev == st.State {
		return
	}

	m.logger.Warn("server runtime is not up", slog.String("server", st.ServerRef.String()), slog.String("state", st.State))
	m.publish(telemetry.NewEvent(st.Host, EventServerDegraded, st))
}

func (m *ServerMonitor) handleRecovery(st services.ServerStatus) {
	m.mu.Lock()
	_, seen := m.degraded[st.ServerRef]
	delete(m.degraded, st.ServerRef)
	m.mu.Unlock()
	if !seen {
		return
	}

	m.logger.Info("server runtime recovered", slog.String("server", st.ServerRef.String()))
	m.publish(telemetry.NewEvent(st.Host, EventServerRecovered, st))
}

func (m *ServerMonitor) publish(e telemetry.Event) {
	if m.hub != nil {
		m.hub.Broadcast(e)
	}
}
