package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"acm-chatbot/backend/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestChecker_CriticalFailureMarksUnhealthy(t *testing.T) {
	c := NewChecker(logger.Nop(), 0)
	dbErr := errors.New("connection refused")
	c.RegisterDatabaseCheck(func(context.Context) error { return dbErr })

	c.RunChecks(context.Background())

	status := c.GetStatus()
	assert.Equal(t, StatusDown, status["database"].Status)
	assert.Equal(t, "connection refused", status["database"].Error)
	assert.Equal(t, StatusUp, status["self"].Status)
	assert.False(t, c.IsSystemHealthy())
}

func TestChecker_NonCriticalFailureKeepsHealthy(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	c := NewChecker(logger.Nop(), 0)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RegisterAPICheck("ollama", down.URL, down.Client())

	c.RunChecks(context.Background())

	status := c.GetStatus()
	assert.Equal(t, StatusDegraded, status["api-ollama"].Status)
	assert.Equal(t, StatusUp, status["database"].Status)
	assert.True(t, c.IsSystemHealthy())
}

func TestChecker_RedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewChecker(logger.Nop(), 0)
	c.RegisterRedisCheck(client)

	c.RunChecks(context.Background())
	assert.Equal(t, StatusUp, c.GetStatus()["redis"].Status)
}

func TestChecker_MirrorsIntoGRPC(t *testing.T) {
	srv := grpchealth.NewServer()
	c := NewChecker(logger.Nop(), 0)
	c.AttachGRPC(srv)

	healthy := true
	c.RegisterDatabaseCheck(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	ctx := context.Background()
	c.RunChecks(ctx)
	resp, err := srv.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	healthy = false
	c.RunChecks(ctx)
	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestChecker_StartStop(t *testing.T) {
	c := NewChecker(logger.Nop(), 0)
	c.Start()
	c.Stop()
	c.Stop()
}
