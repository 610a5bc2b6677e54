package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers /health and keeps the gRPC health service in step
// with what it finds, so probes over either protocol agree.
type HealthHandler struct {
	db     Pinger // nil when nothing is persisted
	grpc   *health.Server
	booted func() int
}

func NewHealthHandler(db Pinger, grpcHealth *health.Server, booted func() int) *HealthHandler {
	return &HealthHandler{db: db, grpc: grpcHealth, booted: booted}
}

type healthReport struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Servers  int    `json:"booted_servers"`
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	// 🛡️ SLA: Use a tight timeout for health checks
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	report := healthReport{Status: "healthy", Database: "disabled"}
	if h.booted != nil {
		report.Servers = h.booted()
	}
	status := http.StatusOK
	serving := healthpb.HealthCheckResponse_SERVING

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			// 🚨 FAIL: the controller is up, but it cannot persist changes
			report.Status, report.Database = "unhealthy", "unreachable"
			status = http.StatusServiceUnavailable
			serving = healthpb.HealthCheckResponse_NOT_SERVING
		} else {
			report.Database = "ok"
		}
	}
	if h.grpc != nil {
		h.grpc.SetServingStatus("", serving)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
