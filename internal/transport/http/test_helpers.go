package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/store"
	"github.com/roomcast/roomcast/internal/store/sqlite"
	"github.com/rs/zerolog"
)

func disabledLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// createTestStore creates an in-memory SQLite store.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

// startTestServer wires a hub and HTTP server around an in-memory store.
func startTestServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	return startTestServerWithConfig(t, st, cfg)
}

func startTestServerWithConfig(t *testing.T, st store.Store, cfg config.Config) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := core.NewHub(st, nil, 0)
	go hub.Run(ctx)

	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second

	logger := disabledLogger()
	server := NewServer(hub, st, &cfg, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts
}
