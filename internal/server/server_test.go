package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(http.NotFoundHandler(), Config{Port: 0, ShutdownTimeout: time.Second}, logger)
}

func TestShutdown_RunsHooksInReverseOrder(t *testing.T) {
	s := newTestServer()

	var order []string
	for _, name := range []string{"database", "redis", "reconciler"} {
		name := name
		s.OnShutdown(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"reconciler", "redis", "database"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdown_JoinsErrorsAndContinues(t *testing.T) {
	s := newTestServer()
	errDB := errors.New("pool busy")

	ran := false
	s.OnShutdown("database", func(context.Context) error {
		ran = true
		return nil
	})
	s.OnShutdown("worker", func(context.Context) error { return errDB })

	err := s.Shutdown(context.Background())
	if !errors.Is(err, errDB) {
		t.Fatalf("expected joined error to wrap %v, got %v", errDB, err)
	}
	if !ran {
		t.Error("a failing hook must not stop later hooks")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := newTestServer()
	stopped := make(chan struct{})
	s.OnShutdown("probe", func(context.Context) error {
		close(stopped)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	<-stopped
}
