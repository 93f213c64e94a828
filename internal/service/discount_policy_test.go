package service

import (
	"testing"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func day(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestTieredDiscountPolicy_DiscountBps(t *testing.T) {
	policy := NewTieredDiscountPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		ageDays  int
		validity int // total days from issue to expiry
		want     int64
	}{
		{"fresh batch earns top tier", 5, 90, 1000},
		{"upper edge of top tier", 30, 90, 1000},
		{"mid tier", 40, 90, 700},
		{"upper edge of mid tier", 60, 90, 700},
		{"late tier", 61, 90, 500},
		{"late tier up to the guard", 75, 90, 500},
		{"inside expiry guard", 80, 90, 0},
		{"expires in exactly 14 days", 76, 90, 0},
		{"short-lived batch never discounts near expiry", 1, 10, 0},
		{"day-old long batch", 0, 365, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := &domain.Batch{
				IssuedAt:  now.Add(-day(tt.ageDays)),
				ExpiresAt: now.Add(day(tt.validity - tt.ageDays)),
			}
			assert.Equal(t, tt.want, policy.DiscountBps(batch, now))
		})
	}
}

func TestTieredDiscountPolicy_ZeroInsideGuardRegardlessOfAge(t *testing.T) {
	policy := NewTieredDiscountPolicy()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// A young batch whose expiry is already close gets no discount even
	// though its age would qualify for the top tier.
	batch := &domain.Batch{
		IssuedAt:  now.Add(-day(3)),
		ExpiresAt: now.Add(day(10)),
	}
	assert.Equal(t, int64(0), policy.DiscountBps(batch, now))
}
