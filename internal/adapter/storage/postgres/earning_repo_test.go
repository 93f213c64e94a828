package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func earningColumnNames() []string {
	return []string{"id", "creator_id", "job_id", "type", "amount", "status", "earned_at", "available_at"}
}

func TestEarningRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEarningRepo(mock)
	jobID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := &domain.Earning{
		ID:          uuid.New(),
		CreatorID:   uuid.New(),
		JobID:       &jobID,
		Type:        domain.EarningTypeJobPayout,
		Amount:      270,
		Status:      domain.EarningStatusPendingVesting,
		EarnedAt:    now,
		AvailableAt: now.Add(7 * 24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO earnings").
		WithArgs(e.ID, e.CreatorID, e.JobID, e.Type, e.Amount, e.Status,
			e.EarnedAt, e.AvailableAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEarningRepo_ListByCreatorPeriod(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEarningRepo(mock)
	creatorID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	from := now.AddDate(0, -1, 0)
	jobID := uuid.New()

	rows := pgxmock.NewRows(earningColumnNames()).
		AddRow(uuid.New(), creatorID, &jobID, domain.EarningTypeJobPayout, int64(270),
			domain.EarningStatusPendingVesting, now.Add(-time.Hour), now.Add(6*24*time.Hour)).
		AddRow(uuid.New(), creatorID, (*uuid.UUID)(nil), domain.EarningTypeWithdrawal, int64(-100),
			domain.EarningStatusWithdrawn, now.Add(-2*time.Hour), now.Add(-2*time.Hour))

	mock.ExpectQuery("SELECT .+ FROM earnings").
		WithArgs(creatorID, from, now).
		WillReturnRows(rows)

	earnings, err := repo.ListByCreatorPeriod(context.Background(), creatorID, from, now)
	require.NoError(t, err)
	require.Len(t, earnings, 2)
	assert.Equal(t, int64(270), earnings[0].Amount)
	assert.Nil(t, earnings[1].JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEarningRepo_AvailableBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEarningRepo(mock)
	creatorID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM earnings").
		WithArgs(creatorID, now).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(170)))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	balance, err := repo.AvailableBalance(context.Background(), tx, creatorID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(170), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
