package pipeline

import (
	"fmt"
	"log/slog"
	"net/http"

	"brickwatch/internal/handler/http/respond"
	"brickwatch/internal/usecase/schedule"
)

// SchedulerRunResponse is the POST /api/scheduler/run payload.
type SchedulerRunResponse struct {
	JobsQueued     int            `json:"jobsQueued"`
	PriorityCounts map[string]int `json:"priorityCounts"`
	StubsCreated   int            `json:"stubsCreated,omitempty"`
}

// SchedulerRunHandler runs a sweep on demand. The default sweep enqueues
// only due and never-seen items; ?mode=all ignores intervals and enqueues
// every active catalog product on every source.
type SchedulerRunHandler struct {
	Scheduler Scheduler
	Logger    *slog.Logger
}

func (h *SchedulerRunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var stats *schedule.SweepStats
	var err error
	mode := r.URL.Query().Get("mode")
	switch mode {
	case "", "due":
		stats, err = h.Scheduler.Sweep(ctx)
	case "all":
		stats, err = h.Scheduler.TriggerAll(ctx)
	default:
		respond.Error(w, http.StatusBadRequest, fmt.Errorf("mode must be \"due\" or \"all\", got %q", mode))
		return
	}
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	h.logger().Info("manual sweep triggered",
		slog.String("mode", mode),
		slog.Int("jobs_queued", stats.JobsEnqueued))

	respond.JSON(w, http.StatusOK, SchedulerRunResponse{
		JobsQueued:     stats.JobsEnqueued,
		PriorityCounts: stats.PriorityCounts,
		StubsCreated:   stats.StubsCreated,
	})
}

func (h *SchedulerRunHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
