package pipeline

import (
	"log/slog"
	"net/http"
	"time"

	"brickwatch/internal/handler/http/respond"
	"brickwatch/internal/infra/queue"
)

// listLimit bounds every per-state job list in the status response. The
// dashboard shows a preview, not the full queue.
const listLimit = 20

// JobLists holds a bounded preview of jobs per state.
type JobLists struct {
	Waiting   []*queue.Job `json:"waiting"`
	Active    []*queue.Job `json:"active"`
	Completed []*queue.Job `json:"completed"`
	Failed    []*queue.Job `json:"failed"`
}

// BreakerStatus is one source's circuit state in the status response.
type BreakerStatus struct {
	State         string     `json:"state"`
	FailureCount  int        `json:"failureCount"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
}

// QueueStatusResponse is the GET /api/queue/status payload.
type QueueStatusResponse struct {
	Counts       *queue.Counts            `json:"counts"`
	Jobs         JobLists                 `json:"jobs"`
	WorkerStatus *queue.WorkerStatus      `json:"workerStatus"`
	Breakers     map[string]BreakerStatus `json:"breakers"`
}

// QueueStatusHandler reports queue counts, per-state job previews, worker
// heartbeat aggregates, and the circuit state of every scheduled source.
type QueueStatusHandler struct {
	Queue   QueueAdmin
	Breaker BreakerAdmin
	Logger  *slog.Logger
}

func (h *QueueStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.Queue.Counts(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	jobs := JobLists{
		Waiting:   []*queue.Job{},
		Active:    []*queue.Job{},
		Completed: []*queue.Job{},
		Failed:    []*queue.Job{},
	}
	for _, entry := range []struct {
		state queue.State
		dst   *[]*queue.Job
	}{
		{queue.StateWaiting, &jobs.Waiting},
		{queue.StateActive, &jobs.Active},
		{queue.StateCompleted, &jobs.Completed},
		{queue.StateFailed, &jobs.Failed},
	} {
		list, err := h.Queue.List(ctx, entry.state, listLimit)
		if err != nil {
			respond.SafeError(w, http.StatusInternalServerError, err)
			return
		}
		if list != nil {
			*entry.dst = list
		}
	}

	workers, err := h.Queue.WorkerStatus(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	breakers := make(map[string]BreakerStatus, len(scheduledSources))
	for _, source := range scheduledSources {
		state, err := h.Breaker.State(ctx, string(source))
		if err != nil {
			// breaker state is advisory; the queue view is still useful
			h.logger().Warn("reading breaker state failed",
				slog.String("source", string(source)),
				slog.Any("error", err))
			continue
		}
		status := BreakerStatus{State: state.State, FailureCount: state.FailureCount}
		if !state.LastFailureAt.IsZero() {
			at := state.LastFailureAt
			status.LastFailureAt = &at
		}
		breakers[string(source)] = status
	}

	respond.JSON(w, http.StatusOK, QueueStatusResponse{
		Counts:       counts,
		Jobs:         jobs,
		WorkerStatus: workers,
		Breakers:     breakers,
	})
}

func (h *QueueStatusHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
