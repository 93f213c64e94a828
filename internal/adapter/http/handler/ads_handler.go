package handler

import (
	"strconv"
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

// AdsHandler handles ad purchase endpoints.
type AdsHandler struct {
	allocationSvc ports.AllocationService
}

// NewAdsHandler creates a new AdsHandler.
func NewAdsHandler(allocationSvc ports.AllocationService) *AdsHandler {
	return &AdsHandler{allocationSvc: allocationSvc}
}

// Purchase handles POST /api/v1/ads/purchases.
func (h *AdsHandler) Purchase(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.AdPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		response.Error(c, apperror.Validation("starts_at must be RFC3339"))
		return
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		response.Error(c, apperror.Validation("ends_at must be RFC3339"))
		return
	}

	purchase, err := h.allocationSvc.Purchase(c.Request.Context(), ports.AdPurchaseRequest{
		MerchantID:  merchantID.(uuid.UUID),
		ReferenceID: req.ReferenceID,
		Scope:       domain.AdScope(req.Scope),
		RawCost:     req.RawCost,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAdPurchaseResponse(purchase))
}

// ListPurchases handles GET /api/v1/ads/purchases.
func (h *AdsHandler) ListPurchases(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	purchases, total, err := h.allocationSvc.ListPurchases(c.Request.Context(), merchantID.(uuid.UUID), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AdPurchaseResponse, 0, len(purchases))
	for i := range purchases {
		items = append(items, toAdPurchaseResponse(&purchases[i]))
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}

	response.OK(c, dto.PurchaseListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// toAdPurchaseResponse converts domain.AdPurchase to DTO.
func toAdPurchaseResponse(p *domain.AdPurchase) dto.AdPurchaseResponse {
	lines := make([]dto.PurchaseLineResponse, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, dto.PurchaseLineResponse{
			BatchID: l.BatchID.String(),
			Amount:  l.Amount,
		})
	}
	return dto.AdPurchaseResponse{
		ID:            p.ID.String(),
		ReferenceID:   p.ReferenceID,
		Scope:         string(p.Scope),
		RawCost:       p.RawCost,
		EffectiveCost: p.EffectiveCost,
		DiscountBps:   p.DiscountBps,
		Discount:      p.DiscountFraction().String(),
		Lines:         lines,
		StartsAt:      p.StartsAt.Format(time.RFC3339),
		EndsAt:        p.EndsAt.Format(time.RFC3339),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}
