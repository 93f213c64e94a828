package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountRole distinguishes shop owners from campaign creators.
type AccountRole string

const (
	RoleMerchant AccountRole = "MERCHANT"
	RoleCreator  AccountRole = "CREATOR"
)

// AccountStatus represents the state of an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Account represents a registered merchant or creator.
// Merchants own token wallets and campaigns; creators take jobs and earn.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"` // Never expose
	DisplayName  string        `json:"display_name"`
	Role         AccountRole   `json:"role"`
	AccessKey    string        `json:"access_key"`
	SecretKeyEnc string        `json:"-"` // Encrypted, never expose
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsActive returns true if the account is active.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// IsMerchant returns true for shop-owner accounts.
func (a *Account) IsMerchant() bool {
	return a.Role == RoleMerchant
}

// IsCreator returns true for creator accounts.
func (a *Account) IsCreator() bool {
	return a.Role == RoleCreator
}
