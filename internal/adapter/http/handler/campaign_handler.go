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

// CampaignHandler handles campaign and job endpoints.
type CampaignHandler struct {
	escrowSvc ports.EscrowService
}

// NewCampaignHandler creates a new CampaignHandler.
func NewCampaignHandler(escrowSvc ports.EscrowService) *CampaignHandler {
	return &CampaignHandler{escrowSvc: escrowSvc}
}

// CreateCampaign handles POST /api/v1/campaigns.
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	campaign, err := h.escrowSvc.CreateCampaign(c.Request.Context(), ports.CreateCampaignRequest{
		MerchantID: merchantID.(uuid.UUID),
		Title:      req.Title,
		Budget:     req.Budget,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toCampaignResponse(campaign))
}

// GetCampaign handles GET /api/v1/campaigns/:id.
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid campaign id"))
		return
	}

	campaign, err := h.escrowSvc.GetCampaign(c.Request.Context(), merchantID.(uuid.UUID), campaignID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toCampaignResponse(campaign))
}

// CreateJob handles POST /api/v1/campaigns/:id/jobs.
func (h *CampaignHandler) CreateJob(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid campaign id"))
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid creator id"))
		return
	}

	job, err := h.escrowSvc.CreateJob(c.Request.Context(), ports.CreateJobRequest{
		MerchantID:  merchantID.(uuid.UUID),
		CampaignID:  campaignID,
		CreatorID:   creatorID,
		AgreedPrice: req.AgreedPrice,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toJobResponse(job, 0))
}

// Accept handles POST /api/v1/jobs/:id/accept (creator).
func (h *CampaignHandler) Accept(c *gin.Context) {
	h.transition(c, func(jobID, actorID uuid.UUID, _ dto.JobTransitionRequest) (*ports.JobUpdate, error) {
		return h.escrowSvc.Accept(c.Request.Context(), jobID, actorID)
	})
}

// Cancel handles POST /api/v1/jobs/:id/cancel (creator).
func (h *CampaignHandler) Cancel(c *gin.Context) {
	h.transition(c, func(jobID, actorID uuid.UUID, req dto.JobTransitionRequest) (*ports.JobUpdate, error) {
		reason := ""
		if req.Reason != nil {
			reason = *req.Reason
		}
		return h.escrowSvc.Cancel(c.Request.Context(), jobID, actorID, reason)
	})
}

// Submit handles POST /api/v1/jobs/:id/submit (creator).
func (h *CampaignHandler) Submit(c *gin.Context) {
	h.transition(c, func(jobID, actorID uuid.UUID, req dto.JobTransitionRequest) (*ports.JobUpdate, error) {
		ref := ""
		if req.DeliverableRef != nil {
			ref = *req.DeliverableRef
		}
		return h.escrowSvc.Submit(c.Request.Context(), jobID, actorID, ref)
	})
}

// Approve handles POST /api/v1/jobs/:id/approve (merchant).
func (h *CampaignHandler) Approve(c *gin.Context) {
	h.transition(c, func(jobID, actorID uuid.UUID, _ dto.JobTransitionRequest) (*ports.JobUpdate, error) {
		return h.escrowSvc.Approve(c.Request.Context(), jobID, actorID)
	})
}

// Reject handles POST /api/v1/jobs/:id/reject (merchant).
func (h *CampaignHandler) Reject(c *gin.Context) {
	h.transition(c, func(jobID, actorID uuid.UUID, req dto.JobTransitionRequest) (*ports.JobUpdate, error) {
		reason := ""
		if req.Reason != nil {
			reason = *req.Reason
		}
		return h.escrowSvc.Reject(c.Request.Context(), jobID, actorID, reason)
	})
}

// transition factors out the shared shape of the five job event endpoints.
func (h *CampaignHandler) transition(c *gin.Context, apply func(jobID, actorID uuid.UUID, req dto.JobTransitionRequest) (*ports.JobUpdate, error)) {
	actorID, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid job id"))
		return
	}

	var req dto.JobTransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		dto.SanitizeStruct(&req)
	}

	update, err := apply(jobID, actorID.(uuid.UUID), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toJobResponse(update.Job, update.BudgetDelta))
}

// toCampaignResponse converts domain.Campaign to DTO.
func toCampaignResponse(campaign *domain.Campaign) dto.CampaignResponse {
	return dto.CampaignResponse{
		ID:              campaign.ID.String(),
		Title:           campaign.Title,
		TotalBudget:     campaign.TotalBudget,
		RemainingBudget: campaign.RemainingBudget,
		Status:          string(campaign.Status),
		CreatedAt:       campaign.CreatedAt.Format(time.RFC3339),
	}
}

// toJobResponse converts domain.Job to DTO.
func toJobResponse(job *domain.Job, budgetDelta int64) dto.JobResponse {
	return dto.JobResponse{
		ID:               job.ID.String(),
		CampaignID:       job.CampaignID.String(),
		CreatorID:        job.CreatorID.String(),
		AgreedPrice:      job.AgreedPrice,
		Status:           string(job.Status),
		DeliverableRef:   job.DeliverableRef,
		Reason:           job.Reason,
		CommissionAmount: job.CommissionAmount,
		PayableAmount:    job.PayableAmount,
		BudgetDelta:      budgetDelta,
		CreatedAt:        job.CreatedAt.Format(time.RFC3339),
	}
}
