package service

import (
	"context"
	"testing"
	"time"

	"stockledger/internal/database"
	"stockledger/internal/events"
	"stockledger/internal/lock"
	"stockledger/internal/logger"
	"stockledger/internal/metrics"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	headOffice  = model.Actor{ID: "ho-1", Name: "Head Office", Role: model.RoleHeadOffice}
	distributor = model.Actor{ID: "dist-1", Name: "North Distribution", Role: model.RoleDistributor}
	rep         = model.Actor{ID: "rep-1", Name: "Rep One", Role: model.RoleDistributorRepresentative, DistributorID: "dist-1"}
	otherRep    = model.Actor{ID: "rep-2", Name: "Rep Two", Role: model.RoleDistributorRepresentative, DistributorID: "dist-1"}
)

type testEnv struct {
	db       *gorm.DB
	stock    repository.StockRepository
	requests repository.RequestRepository
	audit    repository.AuditRepository
	ledger   LedgerService
	workflow WorkflowService
	claims   ClaimService
	recorder *events.Recorder
	metrics  *metrics.Metrics
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes transactions
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T, shortage string) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	log := logger.Discard()
	m := metrics.New()
	rec := &events.Recorder{}
	locker := lock.NewLocalLocker()

	tx := repository.NewTransactionManager(db)
	stock := repository.NewStockRepository(db)
	requests := repository.NewRequestRepository(db)
	histories := repository.NewApprovalHistoryRepository(db)
	audit := repository.NewAuditRepository(db)

	ledger := NewLedgerService(stock, audit, tx, locker, rec, m, log)
	return &testEnv{
		db:       db,
		stock:    stock,
		requests: requests,
		audit:    audit,
		ledger:   ledger,
		workflow: NewWorkflowService(requests, histories, audit, tx, ledger, rec, shortage, m, log),
		claims:   NewClaimService(histories, requests, audit, tx, ledger, locker, rec, m, log),
		recorder: rec,
		metrics:  m,
	}
}

func (e *testEnv) addStock(t *testing.T, chain, owner, product string, qty int, receivedAt time.Time) *model.StockEntry {
	t.Helper()
	entry, err := e.ledger.AddEntry(context.Background(), headOffice, AddEntryInput{
		Chain:      chain,
		OwnerID:    owner,
		ProductID:  product,
		Quantity:   qty,
		ReceivedAt: &receivedAt,
	})
	require.NoError(t, err)
	return entry
}

func (e *testEnv) summary(t *testing.T, chain, owner, product string) *model.StockSummary {
	t.Helper()
	sm, err := e.stock.FindSummary(context.Background(), chain, owner, product)
	require.NoError(t, err)
	return sm
}

func (e *testEnv) entry(t *testing.T, id interface{}) model.StockEntry {
	t.Helper()
	var entry model.StockEntry
	require.NoError(t, e.db.First(&entry, "id = ?", id).Error)
	return entry
}

func (e *testEnv) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

// requireLedgerConsistent checks every entry balances and every summary equals the sum of its entries
func requireLedgerConsistent(t *testing.T, e *testEnv, chain, owner string) {
	t.Helper()
	ctx := context.Background()

	entries, err := e.stock.ListAllEntries(ctx, chain, owner)
	require.NoError(t, err)
	for _, en := range entries {
		require.True(t, en.Balanced(), "entry %s unbalanced: %d/%d/%d", en.ID, en.Quantity, en.AvailableQuantity, en.UsedQuantity)
	}

	drifts, err := e.ledger.CheckDrift(ctx, chain, owner)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var base = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
