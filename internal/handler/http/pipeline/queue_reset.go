package pipeline

import (
	"log/slog"
	"net/http"

	"brickwatch/internal/handler/http/respond"
)

// QueueResetResponse is the POST /api/queue/reset payload.
type QueueResetResponse struct {
	Cleared     ResetTotal `json:"cleared"`
	Repopulated ResetTotal `json:"repopulated"`
}

// ResetTotal wraps a job count for the reset response.
type ResetTotal struct {
	Total int64 `json:"total"`
}

// QueueResetHandler wipes the queue, clears every source breaker, and runs
// one sweep so the queue comes back populated with everything currently due.
// Jobs already executing finish on their own; their Ack/Fail becomes a no-op.
type QueueResetHandler struct {
	Queue     QueueAdmin
	Breaker   BreakerAdmin
	Scheduler Scheduler
	Logger    *slog.Logger
}

func (h *QueueResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger()

	removed, err := h.Queue.Obliterate(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	for _, source := range scheduledSources {
		if err := h.Breaker.Reset(ctx, string(source)); err != nil {
			// a stuck breaker key is not worth failing the whole reset
			logger.Warn("breaker reset failed",
				slog.String("source", string(source)),
				slog.Any("error", err))
		}
	}

	stats, err := h.Scheduler.Sweep(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	logger.Info("queue reset",
		slog.Int64("cleared", removed),
		slog.Int("repopulated", stats.JobsEnqueued))

	respond.JSON(w, http.StatusOK, QueueResetResponse{
		Cleared:     ResetTotal{Total: removed},
		Repopulated: ResetTotal{Total: int64(stats.JobsEnqueued)},
	})
}

func (h *QueueResetHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
