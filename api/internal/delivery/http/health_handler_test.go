package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	deliveryhttp "github.com/irgordon/karidc/api/internal/delivery/http"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func grpcStatus(t *testing.T, hs *health.Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		db       deliveryhttp.Pinger
		wantCode int
		wantGRPC healthpb.HealthCheckResponse_ServingStatus
		wantBody string
	}{
		{"in memory", nil, http.StatusOK, healthpb.HealthCheckResponse_SERVING, `"database":"disabled"`},
		{"database up", pinger{}, http.StatusOK, healthpb.HealthCheckResponse_SERVING, `"database":"ok"`},
		{"database down", pinger{errors.New("refused")}, http.StatusServiceUnavailable, healthpb.HealthCheckResponse_NOT_SERVING, `"database":"unreachable"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := health.NewServer()
			h := deliveryhttp.NewHealthHandler(tt.db, hs, func() int { return 2 })

			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.Contains(t, rec.Body.String(), `"booted_servers":2`)
			assert.Equal(t, tt.wantGRPC, grpcStatus(t, hs))
		})
	}
}
