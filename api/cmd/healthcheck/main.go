package main

import (
	"context"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	// Points to the gRPC health port of the controller
	addr := "localhost:9090"
	if v := os.Getenv("GRPC_HEALTH_ADDR"); v != "" {
		if strings.HasPrefix(v, ":") {
			v = "localhost" + v
		}
		addr = v
	}
	os.Exit(probe(addr, 3*time.Second))
}

// probe returns the process exit code: 0 when serving, 1 otherwise.
func probe(addr string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return 1
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return 1 // Docker marks as UNHEALTHY
	}
	return 0 // Docker marks as HEALTHY
}
