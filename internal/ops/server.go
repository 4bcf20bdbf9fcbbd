// Package ops serves a small read-only status endpoint next to a running
// pipeline so operators can check progress without touching the state files.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mesflow/mesflow/internal/state"
)

// Status is the /status response body.
type Status struct {
	RunID           string     `json:"run_id"`
	LastProcessedID *int64     `json:"last_processed_id,omitempty"`
	CheckpointAt    *time.Time `json:"checkpoint_at,omitempty"`
	LastWindowStart *time.Time `json:"last_window_start,omitempty"`
	LastWindowEnd   *time.Time `json:"last_window_end,omitempty"`
	SuccessCount    int64      `json:"success_count"`
	FailCount       int64      `json:"fail_count"`
}

// NewHandler builds the ops router over the given state stores.
func NewHandler(store *state.Store, checkpoint *state.CheckpointStore, runID string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		st := Status{RunID: runID}

		if cp, ok := checkpoint.Load(); ok {
			st.LastProcessedID = &cp.LastProcessedID
			st.CheckpointAt = &cp.Timestamp
		}

		if win, found, err := store.LastWindow(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		} else if found {
			st.LastWindowStart = &win.Start
			st.LastWindowEnd = &win.End
		}

		success, fail, err := store.OutcomeCounts()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		st.SuccessCount = success
		st.FailCount = fail

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})

	return r
}

// Serve runs the ops server until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ops endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
