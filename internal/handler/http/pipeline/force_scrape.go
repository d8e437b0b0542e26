package pipeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"brickwatch/internal/handler/http/respond"
)

// ForceScrapeRequest is the POST /api/force-scrape body.
type ForceScrapeRequest struct {
	ItemIDs []string `json:"itemIds"`
}

// ForceScrapeResult reports what the forced enqueue did.
type ForceScrapeResult struct {
	JobsEnqueued int      `json:"jobsEnqueued"`
	Deduped      int      `json:"deduped,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// ForceScrapeResponse is the POST /api/force-scrape payload.
type ForceScrapeResponse struct {
	Result ForceScrapeResult `json:"result"`
}

// ForceScrapeHandler enqueues immediate high-priority marketplace scrapes
// for explicit item ids, jumping the normal schedule.
type ForceScrapeHandler struct {
	Scheduler Scheduler
	Logger    *slog.Logger
}

func (h *ForceScrapeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ForceScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if len(req.ItemIDs) == 0 {
		respond.Error(w, http.StatusBadRequest, errors.New("itemIds is required"))
		return
	}

	stats, err := h.Scheduler.ForceScrape(r.Context(), req.ItemIDs)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	result := ForceScrapeResult{JobsEnqueued: stats.JobsEnqueued}
	for _, sweep := range stats.Sources {
		result.Deduped += sweep.Deduped
		result.Errors = append(result.Errors, sweep.Errors...)
	}

	h.logger().Info("force scrape",
		slog.Int("requested", len(req.ItemIDs)),
		slog.Int("jobs_enqueued", result.JobsEnqueued))

	respond.JSON(w, http.StatusOK, ForceScrapeResponse{Result: result})
}

func (h *ForceScrapeHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
