package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/application/orchestrator"
	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/interfaces/http/dto"
)

// idempotencyTTL bounds how long a trigger idempotency key suppresses
// duplicates
const idempotencyTTL = 24 * time.Hour

// IngestionHandler exposes the ingestion run API
type IngestionHandler struct {
	service     *orchestrator.Service
	idempotency shared.IdempotencyStore
	logger      *zap.Logger
}

// NewIngestionHandler creates the ingestion handler
func NewIngestionHandler(service *orchestrator.Service, idempotency shared.IdempotencyStore, logger *zap.Logger) *IngestionHandler {
	return &IngestionHandler{
		service:     service,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Trigger handles POST /api/v1/ingestion/runs
func (h *IngestionHandler) Trigger(c *gin.Context) {
	var req dto.TriggerIngestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	eventType := source.EventType(req.EventType)
	if !eventType.IsValid() {
		BadRequest(c, "unknown event type: "+req.EventType)
		return
	}
	if !eventType.IsDictionary() && (req.DateFrom == nil || req.DateTo == nil) {
		BadRequest(c, "date_from and date_to are required for "+req.EventType)
		return
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateTo.Before(*req.DateFrom) {
		BadRequest(c, "date_to precedes date_from")
		return
	}

	if key := c.GetHeader("Idempotency-Key"); key != "" {
		fresh, err := h.idempotency.MarkProcessed(c.Request.Context(), "trigger:"+key, idempotencyTTL)
		if err != nil {
			h.logger.Warn("idempotency check failed, proceeding", zap.Error(err))
		} else if !fresh {
			Conflict(c, "a run with this idempotency key was already triggered")
			return
		}
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		BadRequest(c, "invalid account_id")
		return
	}

	now := time.Now()
	cmd := orchestrator.TriggerCommand{
		AccountID:   accountID,
		EventType:   eventType,
		SourceLabel: "api",
		Replication: req.ReplicationFactor,
		DateFrom:    now,
		DateTo:      now,
	}
	if req.DateFrom != nil {
		cmd.DateFrom = *req.DateFrom
	}
	if req.DateTo != nil {
		cmd.DateTo = *req.DateTo
	}

	run, err := h.service.TriggerIngestion(c.Request.Context(), cmd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	Created(c, run)
}

// Get handles GET /api/v1/ingestion/runs/:id
func (h *IngestionHandler) Get(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, run)
}

// Audit handles GET /api/v1/ingestion/runs/:id/audit
func (h *IngestionHandler) Audit(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	records, err := h.service.GetAudit(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, records)
}

// Cancel handles POST /api/v1/ingestion/runs/:id/cancel
func (h *IngestionHandler) Cancel(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	run, err := h.service.CancelRun(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	Success(c, run)
}

func (h *IngestionHandler) runID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		BadRequest(c, "invalid run id")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		BadRequest(c, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *IngestionHandler) writeError(c *gin.Context, err error) {
	var illegal *ingestion.IllegalStateTransitionError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		NotFound(c, "run not found")
	case errors.Is(err, ingestion.ErrNoActiveMarketplace):
		Unprocessable(c, "account has no active marketplace")
	case errors.Is(err, source.ErrNoSourcesForEvent):
		Unprocessable(c, "no sources registered for event type")
	case errors.As(err, &illegal):
		Conflict(c, err.Error())
	default:
		h.logger.Error("ingestion request failed", zap.Error(err))
		Internal(c, "internal error")
	}
}
