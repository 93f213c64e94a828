package dto

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=100"`
	Role        string `json:"role" binding:"required"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
// SecretKey is shown here once and never again.
type RegisterResponse struct {
	AccountID string `json:"account_id"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreditRequest is the request body for crediting a token batch.
type CreditRequest struct {
	Amount     int64   `json:"amount" binding:"required,gt=0"`
	UnitPrice  int64   `json:"unit_price" binding:"required,gt=0"`
	ExpiresAt  *string `json:"expires_at,omitempty"` // RFC3339; default validity applies when absent
	Provenance *string `json:"provenance,omitempty"` // Defaults to PURCHASE
}

// BatchResponse is one token batch in API responses.
type BatchResponse struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Remaining  int64  `json:"remaining"`
	UnitPrice  int64  `json:"unit_price"`
	Provenance string `json:"provenance"`
	IssuedAt   string `json:"issued_at"`
	ExpiresAt  string `json:"expires_at"`
}

// BalanceResponse is the response for a wallet balance query.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// AdPurchaseRequest is the request body for buying an ad slot.
type AdPurchaseRequest struct {
	ReferenceID string `json:"reference_id" binding:"required,max=100,safe_id"`
	Scope       string `json:"scope" binding:"required"`
	RawCost     int64  `json:"raw_cost" binding:"required,gt=0"`
	StartsAt    string `json:"starts_at" binding:"required"` // RFC3339
	EndsAt      string `json:"ends_at" binding:"required"`   // RFC3339
}

// PurchaseLineResponse is one batch's share of a purchase.
type PurchaseLineResponse struct {
	BatchID string `json:"batch_id"`
	Amount  int64  `json:"amount"`
}

// AdPurchaseResponse is the response body for a purchase. Discount is the
// applied rate as a decimal fraction of DiscountBps, e.g. "0.1" for 1000.
type AdPurchaseResponse struct {
	ID            string                 `json:"id"`
	ReferenceID   string                 `json:"reference_id"`
	Scope         string                 `json:"scope"`
	RawCost       int64                  `json:"raw_cost"`
	EffectiveCost int64                  `json:"effective_cost"`
	DiscountBps   int64                  `json:"discount_bps"`
	Discount      string                 `json:"discount"`
	Lines         []PurchaseLineResponse `json:"lines"`
	StartsAt      string                 `json:"starts_at"`
	EndsAt        string                 `json:"ends_at"`
	CreatedAt     string                 `json:"created_at"`
}

// PurchaseListResponse wraps a paginated purchase list.
type PurchaseListResponse struct {
	Items      []AdPurchaseResponse `json:"items"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// CreateCampaignRequest is the request body for creating a campaign.
type CreateCampaignRequest struct {
	Title  string `json:"title" binding:"required,min=1,max=200"`
	Budget int64  `json:"budget" binding:"required,gt=0"`
}

// CampaignResponse is the response body for a campaign.
type CampaignResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	TotalBudget     int64  `json:"total_budget"`
	RemainingBudget int64  `json:"remaining_budget"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// CreateJobRequest is the request body for inviting a creator to a campaign.
type CreateJobRequest struct {
	CreatorID   string `json:"creator_id" binding:"required,uuid"`
	AgreedPrice int64  `json:"agreed_price" binding:"required,gt=0"`
}

// JobTransitionRequest carries the optional payload of a job transition.
// Submit requires DeliverableRef; cancel and reject require Reason.
type JobTransitionRequest struct {
	DeliverableRef *string `json:"deliverable_ref,omitempty"`
	Reason         *string `json:"reason,omitempty"`
}

// JobResponse is the response body for a job.
type JobResponse struct {
	ID               string  `json:"id"`
	CampaignID       string  `json:"campaign_id"`
	CreatorID        string  `json:"creator_id"`
	AgreedPrice      int64   `json:"agreed_price"`
	Status           string  `json:"status"`
	DeliverableRef   *string `json:"deliverable_ref,omitempty"`
	Reason           *string `json:"reason,omitempty"`
	CommissionAmount int64   `json:"commission_amount"`
	PayableAmount    int64   `json:"payable_amount"`
	BudgetDelta      int64   `json:"budget_delta,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// EarningResponse is one earnings ledger entry.
type EarningResponse struct {
	ID          string  `json:"id"`
	JobID       *string `json:"job_id,omitempty"`
	Type        string  `json:"type"`
	Amount      int64   `json:"amount"`
	Status      string  `json:"status"`
	EarnedAt    string  `json:"earned_at"`
	AvailableAt string  `json:"available_at"`
}

// EarningsSummaryResponse aggregates a creator's period.
type EarningsSummaryResponse struct {
	TotalPayable     int64 `json:"total_payable"`
	TotalWithdrawn   int64 `json:"total_withdrawn"`
	AvailableBalance int64 `json:"available_balance"`
	TaxEstimate      int64 `json:"tax_estimate"`
}

// WithdrawRequest is the request body for withdrawing earnings.
type WithdrawRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}
