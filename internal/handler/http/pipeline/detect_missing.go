package pipeline

import (
	"log/slog"
	"net/http"

	"brickwatch/internal/handler/http/respond"
	"brickwatch/internal/usecase/detect"
)

// DetectMissingResponse is the POST /api/detect-missing payload.
type DetectMissingResponse struct {
	Result *detect.Stats `json:"result"`
}

// DetectMissingHandler runs a missing-data scan on demand and reports what
// it found and enqueued.
type DetectMissingHandler struct {
	Detector Detector
	Logger   *slog.Logger
}

func (h *DetectMissingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Detector.Detect(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	h.logger().Info("manual missing-data detection",
		slog.Int("jobs_enqueued", stats.JobsEnqueued))

	respond.JSON(w, http.StatusOK, DetectMissingResponse{Result: stats})
}

func (h *DetectMissingHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
