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

// WalletHandler handles token wallet endpoints.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// GetBalance handles GET /api/v1/wallets/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	balance, err := h.ledgerSvc.GetBalance(c.Request.Context(), merchantID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{Balance: balance})
}

// ListBatches handles GET /api/v1/wallets/batches.
func (h *WalletHandler) ListBatches(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	batches, err := h.ledgerSvc.ListBatches(c.Request.Context(), merchantID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.BatchResponse, 0, len(batches))
	for i := range batches {
		items = append(items, toBatchResponse(&batches[i]))
	}
	response.OK(c, items)
}

// Credit handles POST /api/v1/wallets/credit.
func (h *WalletHandler) Credit(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	creditReq := ports.CreditRequest{
		MerchantID: merchantID.(uuid.UUID),
		Amount:     req.Amount,
		UnitPrice:  req.UnitPrice,
		Provenance: domain.ProvenancePurchase,
	}
	if req.Provenance != nil {
		creditReq.Provenance = domain.BatchProvenance(*req.Provenance)
	}
	if req.ExpiresAt != nil {
		expiresAt, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			response.Error(c, apperror.Validation("expires_at must be RFC3339"))
			return
		}
		creditReq.ExpiresAt = expiresAt
	}

	batch, err := h.ledgerSvc.Credit(c.Request.Context(), creditReq)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toBatchResponse(batch))
}

// toBatchResponse converts domain.Batch to DTO.
func toBatchResponse(b *domain.Batch) dto.BatchResponse {
	return dto.BatchResponse{
		ID:         b.ID.String(),
		Amount:     b.Amount,
		Remaining:  b.Remaining,
		UnitPrice:  b.UnitPrice,
		Provenance: string(b.Provenance),
		IssuedAt:   b.IssuedAt.Format(time.RFC3339),
		ExpiresAt:  b.ExpiresAt.Format(time.RFC3339),
	}
}
