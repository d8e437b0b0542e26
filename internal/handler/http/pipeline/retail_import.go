package pipeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"brickwatch/internal/handler/http/respond"
	"brickwatch/internal/infra/scraper"
)

// RetailImportRequest is the POST /api/retail/import body. The html field
// carries a whole pasted shop page, so bodies run large; the server caps
// them with its request-body limit middleware.
type RetailImportRequest struct {
	HTML      string `json:"html"`
	SourceURL string `json:"source_url"`
}

// RetailImportResult reports the batch upsert outcome.
type RetailImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// RetailImportResponse is the POST /api/retail/import payload.
type RetailImportResponse struct {
	Result RetailImportResult `json:"result"`
}

// RetailImportHandler ingests a retail shop page the user pasted into the
// dashboard. Parse failures are the user's input error and come back 400;
// only storage failures are 500s.
type RetailImportHandler struct {
	Importer Importer
	Logger   *slog.Logger
}

func (h *RetailImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RetailImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.HTML == "" {
		respond.Error(w, http.StatusBadRequest, errors.New("html is required"))
		return
	}
	if req.SourceURL == "" {
		respond.Error(w, http.StatusBadRequest, errors.New("source_url is required"))
		return
	}

	batch, err := h.Importer.Import(r.Context(), req.HTML, req.SourceURL)
	if err != nil {
		var invalid *scraper.InvalidInputError
		if errors.As(err, &invalid) {
			respond.Error(w, http.StatusBadRequest, invalid)
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	h.logger().Info("retail listings imported",
		slog.String("source_url", req.SourceURL),
		slog.Int("created", batch.Created),
		slog.Int("updated", batch.Updated))

	respond.JSON(w, http.StatusOK, RetailImportResponse{
		Result: RetailImportResult{
			Created: batch.Created,
			Updated: batch.Updated,
			Total:   batch.Total,
		},
	})
}

func (h *RetailImportHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
