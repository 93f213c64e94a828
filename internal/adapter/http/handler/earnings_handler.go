package handler

import (
	"time"

	"github.com/zablink/token-engine/internal/adapter/http/dto"
	"github.com/zablink/token-engine/internal/adapter/http/middleware"
	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"
	"github.com/zablink/token-engine/pkg/apperror"
	"github.com/zablink/token-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EarningsHandler handles creator earnings endpoints.
type EarningsHandler struct {
	earningsSvc ports.EarningsService
}

// NewEarningsHandler creates a new EarningsHandler.
func NewEarningsHandler(earningsSvc ports.EarningsService) *EarningsHandler {
	return &EarningsHandler{earningsSvc: earningsSvc}
}

// List handles GET /api/v1/earnings.
func (h *EarningsHandler) List(c *gin.Context) {
	creatorID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	earnings, err := h.earningsSvc.List(c.Request.Context(), creatorID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.EarningResponse, 0, len(earnings))
	for i := range earnings {
		items = append(items, toEarningResponse(&earnings[i]))
	}
	response.OK(c, items)
}

// Summary handles GET /api/v1/earnings/summary?from=...&to=...
// Defaults to the current calendar month when the period is absent.
func (h *EarningsHandler) Summary(c *gin.Context) {
	creatorID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, apperror.Validation("from must be RFC3339"))
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, apperror.Validation("to must be RFC3339"))
			return
		}
		to = parsed
	}

	summary, err := h.earningsSvc.Summarize(c.Request.Context(), creatorID.(uuid.UUID), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.EarningsSummaryResponse{
		TotalPayable:     summary.TotalPayable,
		TotalWithdrawn:   summary.TotalWithdrawn,
		AvailableBalance: summary.AvailableBalance,
		TaxEstimate:      summary.TaxEstimate,
	})
}

// Withdraw handles POST /api/v1/earnings/withdraw.
func (h *EarningsHandler) Withdraw(c *gin.Context) {
	creatorID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entry, err := h.earningsSvc.Withdraw(c.Request.Context(), creatorID.(uuid.UUID), req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toEarningResponse(entry))
}

// toEarningResponse converts domain.Earning to DTO.
func toEarningResponse(e *domain.Earning) dto.EarningResponse {
	resp := dto.EarningResponse{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		Amount:      e.Amount,
		Status:      string(e.Status),
		EarnedAt:    e.EarnedAt.Format(time.RFC3339),
		AvailableAt: e.AvailableAt.Format(time.RFC3339),
	}
	if e.JobID != nil {
		s := e.JobID.String()
		resp.JobID = &s
	}
	return resp
}
