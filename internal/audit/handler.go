package audit

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easyshare/service/internal/response"
)

// Handler serves the audit summary.
type Handler struct {
	recorder Recorder
	logger   *log.Logger
}

// NewHandler creates a new audit Handler.
func NewHandler(recorder Recorder, logger *log.Logger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// Stats godoc
//
//	@Summary		Usage statistics
//	@Description	Totals of accepted uploads and sweep runs since the audit log was created.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=Stats}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/admin/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recorder.Stats(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("audit stats", "err", err)
		response.InternalError(w)
		return
	}
	response.OK(w, stats)
}
