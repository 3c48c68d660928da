package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/curator"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	runListTimeout  = 3 * time.Second
	runHistoryPath  = "/v1/curator/runs"
)

type curatorHandler struct {
	runner CuratorRunner
	runs   RunLister
	logger *zap.Logger

	// running is held from the moment a run is accepted until it finishes.
	running  sync.Mutex
	inflight sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
}

type runAccepted struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	History   string    `json:"history"`
}

func newCuratorHandler(runner CuratorRunner, runs RunLister, logger *zap.Logger) *curatorHandler {
	return &curatorHandler{runner: runner, runs: runs, logger: logger}
}

// trigger handles POST /v1/curator/runs. The run is detached from the
// request: it keeps going after the client disconnects and is bounded only by
// the runner's own job timeout. The response is 202 once the run has started,
// or 409 when a run is already in progress. Results land in the run history.
func (h *curatorHandler) trigger(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "curator unavailable")
		return
	}
	if !h.running.TryLock() {
		writeError(w, http.StatusConflict, "curator run already in progress")
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	started := time.Now().UTC()
	h.inflight.Add(1)
	go h.execute(ctx, cancel)

	w.Header().Set("Location", runHistoryPath)
	writeJSON(w, http.StatusAccepted, runAccepted{
		Status:    "accepted",
		StartedAt: started,
		History:   runHistoryPath,
	})
}

func (h *curatorHandler) execute(ctx context.Context, cancel context.CancelFunc) {
	defer h.inflight.Done()
	defer h.running.Unlock()
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("curator run panicked", zap.Any("panic", rec))
		}
	}()

	res := h.runner.Execute(ctx)
	h.logger.Info("curator run finished",
		zap.String("run_id", res.RunID),
		zap.String("status", res.Status),
		zap.Int("total", res.TotalResources),
		zap.Int("failed", res.FailedResources),
	)
}

// shutdown waits for an in-flight run. When ctx expires first the run is
// cancelled, which fails it without writing the catalog.
func (h *curatorHandler) shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Unlock()
	<-done
	return fmt.Errorf("curator run cancelled at shutdown: %w", ctx.Err())
}

// list handles GET /v1/curator/runs?limit=.
func (h *curatorHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), runListTimeout)
	defer cancel()

	runs, err := h.runs.Recent(ctx, limit)
	if err != nil {
		h.logger.Error("list curator runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list curator runs")
		return
	}
	if runs == nil {
		runs = []curator.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultRunLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	return limit, nil
}
