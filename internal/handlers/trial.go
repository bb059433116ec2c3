// internal/handlers/trial.go
package handlers

import (
	"bytes"
	"errors"
	"net/http"

	"lasso-go/internal/lasso"
	"lasso-go/internal/services"
	"lasso-go/views"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by the router middlewares.
const (
	ParticipantIDKey = "participant_id"
	CSRFTokenKey     = "csrf_token"
	CSPNonceKey      = "csp_nonce"
)

type beginRequest struct {
	Timestamp float64 `json:"timestamp"`
	OffsetX   float64 `json:"offsetX"`
	OffsetY   float64 `json:"offsetY"`
}

// eventsRequest is one batch of pointer events. Seq numbers the batches of a
// trial from 1 so they are applied in the order they were captured.
type eventsRequest struct {
	Seq    uint64        `json:"seq" binding:"required,min=1"`
	Events []lasso.Event `json:"events"`
}

type TrialHandler struct {
	log      *zap.Logger
	trials   *services.TrialService
	stimulus lasso.Stimulus
	width    int
	height   int
}

func NewTrialHandler(log *zap.Logger, trials *services.TrialService, stimulus lasso.Stimulus, width, height int) *TrialHandler {
	return &TrialHandler{log: log, trials: trials, stimulus: stimulus, width: width, height: height}
}

// ShowPage renders the poster page with the demo mount point.
func (h *TrialHandler) ShowPage(c *gin.Context) {
	csrfToken := c.GetString(CSRFTokenKey)
	cspNonce := c.GetString(CSPNonceKey)

	page := views.TrialPage(h.width, h.height)
	err := views.Layout("Clustering demo", csrfToken, cspNonce).Render(
		templ.WithChildren(c.Request.Context(), page),
		c.Writer,
	)
	if err != nil {
		h.log.Error("Failed to render trial page", zap.Error(err))
		c.Status(http.StatusInternalServerError)
	}
}

// Stimulus serves the point set the browser draws.
func (h *TrialHandler) Stimulus(c *gin.Context) {
	c.JSON(http.StatusOK, h.stimulus)
}

func (h *TrialHandler) Begin(c *gin.Context) {
	var req beginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data"})
		return
	}

	participantID := c.GetString(ParticipantIDKey)
	offset := lasso.Point{X: req.OffsetX, Y: req.OffsetY}
	status, err := h.trials.Begin(c.Request.Context(), participantID, offset, req.Timestamp)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *TrialHandler) Events(c *gin.Context) {
	var req eventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data"})
		return
	}

	status, err := h.trials.Dispatch(c.Request.Context(), c.GetString(ParticipantIDKey), req.Seq, req.Events)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *TrialHandler) Retry(c *gin.Context) {
	var req beginRequest
	// The body is optional; an empty one leaves the server to stamp the time.
	_ = c.ShouldBindJSON(&req)

	status, err := h.trials.AcknowledgeRetry(c.Request.Context(), c.GetString(ParticipantIDKey), req.Timestamp)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *TrialHandler) Status(c *gin.Context) {
	status, err := h.trials.Status(c.GetString(ParticipantIDKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *TrialHandler) Snapshot(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.trials.Snapshot(c.GetString(ParticipantIDKey), &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *TrialHandler) Abandon(c *gin.Context) {
	if err := h.trials.Abandon(c.GetString(ParticipantIDKey)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TrialHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNoTrial):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStaleBatch),
		errors.Is(err, services.ErrBatchGap),
		errors.Is(err, lasso.ErrAlreadyStarted),
		errors.Is(err, lasso.ErrNotStarted),
		errors.Is(err, lasso.ErrNoRetryPending),
		errors.Is(err, lasso.ErrTrialClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("Trial request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("participant_id", c.GetString(ParticipantIDKey)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
