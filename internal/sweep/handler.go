package sweep

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easyshare/service/internal/response"
)

// Handler exposes on-demand sweeps to operators.
type Handler struct {
	sweeper   *Sweeper
	retention time.Duration
	logger    *log.Logger
}

// NewHandler creates a new sweep Handler.
func NewHandler(sweeper *Sweeper, retention time.Duration, logger *log.Logger) *Handler {
	return &Handler{sweeper: sweeper, retention: retention, logger: logger}
}

// Run godoc
//
//	@Summary		Run a sweep now
//	@Description	Deletes every object older than the retention window and returns the run report.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=Report}
//	@Failure		401	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/admin/sweep [post]
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context(), time.Now(), h.retention)
	if errors.Is(err, ErrListFailed) {
		response.BadGateway(w, "object store listing failed")
		return
	}
	if err != nil {
		h.logger.Error("manual sweep", "err", err)
		response.InternalError(w)
		return
	}
	response.OK(w, report)
}
