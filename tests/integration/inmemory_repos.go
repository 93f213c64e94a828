package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zablink/token-engine/internal/core/domain"
	"github.com/zablink/token-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// The in-memory repos mirror the SQL guards of the real adapters: the
// batch decrement is compare-and-swap, the budget reservation is
// decrement-if-sufficient, and the balance adjustment refuses to go
// negative. Concurrency tests lean on those guards, not on row locks.

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == a.Username {
			return fmt.Errorf("username already exists")
		}
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAccountRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.AccessKey == accessKey {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.MerchantID == merchantID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByMerchantIDForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByMerchantID(ctx, merchantID)
}

func (r *inMemoryWalletRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	if w.Balance+delta < 0 {
		return fmt.Errorf("balance adjustment by %d refused", delta)
	}
	w.Balance += delta
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Batch Repo ---

type inMemoryBatchRepo struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*domain.Batch
}

func newInMemoryBatchRepo() *inMemoryBatchRepo {
	return &inMemoryBatchRepo{batches: make(map[uuid.UUID]*domain.Batch)}
}

func (r *inMemoryBatchRepo) Create(ctx context.Context, tx pgx.Tx, b *domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.batches[b.ID] = &cp
	return nil
}

func (r *inMemoryBatchRepo) ListConsumable(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, now time.Time) ([]domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Batch
	for _, b := range r.batches {
		if b.WalletID == walletID && b.Remaining > 0 && b.ExpiresAt.After(now) {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].IssuedAt.Before(result[j].IssuedAt)
	})
	return result, nil
}

func (r *inMemoryBatchRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Batch
	for _, b := range r.batches {
		if b.WalletID == walletID {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IssuedAt.Before(result[j].IssuedAt)
	})
	return result, nil
}

func (r *inMemoryBatchRepo) ConsumeRemaining(ctx context.Context, tx pgx.Tx, batchID uuid.UUID, take int64, expectedRemaining int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return ports.ErrStaleRemaining
	}
	if b.Remaining != expectedRemaining || b.Remaining < take {
		return ports.ErrStaleRemaining
	}
	b.Remaining -= take
	return nil
}

// --- In-Memory Ad Purchase Repo ---

type inMemoryPurchaseRepo struct {
	mu        sync.RWMutex
	purchases map[uuid.UUID]*domain.AdPurchase
}

func newInMemoryPurchaseRepo() *inMemoryPurchaseRepo {
	return &inMemoryPurchaseRepo{purchases: make(map[uuid.UUID]*domain.AdPurchase)}
}

func (r *inMemoryPurchaseRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.AdPurchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.purchases {
		if existing.MerchantID == p.MerchantID && existing.ReferenceID == p.ReferenceID {
			return fmt.Errorf("duplicate reference")
		}
	}
	cp := *p
	cp.Lines = append([]domain.ConsumptionLine(nil), p.Lines...)
	r.purchases[p.ID] = &cp
	return nil
}

func (r *inMemoryPurchaseRepo) GetByReference(ctx context.Context, merchantID uuid.UUID, referenceID string) (*domain.AdPurchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.purchases {
		if p.MerchantID == merchantID && p.ReferenceID == referenceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPurchaseRepo) List(ctx context.Context, merchantID uuid.UUID, page, pageSize int) ([]domain.AdPurchase, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.AdPurchase
	for _, p := range r.purchases {
		if p.MerchantID == merchantID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.AdPurchase{}, total, nil
	}
	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// --- In-Memory Campaign Repo ---

type inMemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[uuid.UUID]*domain.Campaign
}

func newInMemoryCampaignRepo() *inMemoryCampaignRepo {
	return &inMemoryCampaignRepo{campaigns: make(map[uuid.UUID]*domain.Campaign)}
}

func (r *inMemoryCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *inMemoryCampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryCampaignRepo) ReserveBudget(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, amount int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return false, fmt.Errorf("campaign not found")
	}
	if c.RemainingBudget < amount {
		return false, nil
	}
	c.RemainingBudget -= amount
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *inMemoryCampaignRepo) ReleaseBudget(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return fmt.Errorf("campaign not found")
	}
	if c.RemainingBudget+amount > c.TotalBudget {
		return fmt.Errorf("budget release by %d refused", amount)
	}
	c.RemainingBudget += amount
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Job Repo ---

type inMemoryJobRepo struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

func newInMemoryJobRepo() *inMemoryJobRepo {
	return &inMemoryJobRepo{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (r *inMemoryJobRepo) Create(ctx context.Context, tx pgx.Tx, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *inMemoryJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *inMemoryJobRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Job, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryJobRepo) Update(ctx context.Context, tx pgx.Tx, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; !ok {
		return fmt.Errorf("job not found")
	}
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *inMemoryJobRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Job
	for _, j := range r.jobs {
		if j.CampaignID == campaignID {
			result = append(result, *j)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// --- In-Memory Earning Repo ---

type inMemoryEarningRepo struct {
	mu       sync.RWMutex
	earnings []domain.Earning
}

func newInMemoryEarningRepo() *inMemoryEarningRepo {
	return &inMemoryEarningRepo{}
}

func (r *inMemoryEarningRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.Earning) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.earnings = append(r.earnings, *e)
	return nil
}

func (r *inMemoryEarningRepo) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]domain.Earning, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Earning
	for _, e := range r.earnings {
		if e.CreatorID == creatorID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EarnedAt.After(result[j].EarnedAt)
	})
	return result, nil
}

func (r *inMemoryEarningRepo) ListByCreatorPeriod(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]domain.Earning, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Earning
	for _, e := range r.earnings {
		if e.CreatorID != creatorID {
			continue
		}
		if e.EarnedAt.Before(from) || !e.EarnedAt.Before(to) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EarnedAt.After(result[j].EarnedAt)
	})
	return result, nil
}

func (r *inMemoryEarningRepo) AvailableBalance(ctx context.Context, tx pgx.Tx, creatorID uuid.UUID, now time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, e := range r.earnings {
		if e.CreatorID != creatorID {
			continue
		}
		if e.Type == domain.EarningTypeWithdrawal || !e.AvailableAt.After(now) {
			sum += e.Amount
		}
	}
	return sum, nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
