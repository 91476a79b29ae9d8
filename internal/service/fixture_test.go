package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 门店登记坐标与附近、远处的扫码位置
var (
	shopLat, shopLng = 31.2304, 121.4737
	nearGeo          = models.NewGeoPoint(31.2308, 121.4740)
	farGeo           = models.NewGeoPoint(31.2504, 121.4737)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []MembershipStatusEvent
}

func (n *recordingNotifier) NotifyStatusChange(_ context.Context, event MembershipStatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, event := range n.events {
		out = append(out, event.Status)
	}
	return out
}

func (n *recordingNotifier) count(status string) int {
	total := 0
	for _, item := range n.statuses() {
		if item == status {
			total++
		}
	}
	return total
}

type fixtureOptions struct {
	threshold      int
	cooldown       time.Duration
	allowNoGeo     bool
	shopWithoutGeo bool
	poolSize       int // 大于 1 时并发测试真实争用连接
}

type ledgerFixture struct {
	db         *gorm.DB
	clock      *fakeClock
	metrics    *metrics.Collector
	notifier   *recordingNotifier
	engine     *RewardCycleEngine
	tokens     *QRTokenService
	guard      *FraudGuard
	ledger     *StampLedgerService
	redemption *RedemptionService
	scans      *ScanService
	merchant   models.Merchant
	program    models.LoyaltyProgram
	customer   models.Customer
	staff      Actor
	shopper    Actor
}

// setupServiceTestDB poolSize 为 1 时使用共享内存库；大于 1 时改用临时文件库，
// 多个连接才能真正并发争用写锁
func setupServiceTestDB(t *testing.T, poolSize int) *gorm.DB {
	t.Helper()
	if poolSize < 1 {
		poolSize = 1
	}
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	if poolSize > 1 {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate",
			filepath.Join(t.TempDir(), "ledger.db"))
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetMaxIdleConns(poolSize)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func newLedgerFixture(t *testing.T, opts fixtureOptions) *ledgerFixture {
	t.Helper()
	if opts.threshold <= 0 {
		opts.threshold = 5
	}
	db := setupServiceTestDB(t, opts.poolSize)
	f := &ledgerFixture{
		db:       db,
		clock:    newFakeClock(),
		metrics:  metrics.New(),
		notifier: &recordingNotifier{},
	}

	f.merchant = models.Merchant{Name: "Corner Cafe"}
	if !opts.shopWithoutGeo {
		lat, lng := models.NewCoordinate(shopLat), models.NewCoordinate(shopLng)
		f.merchant.Latitude = &lat
		f.merchant.Longitude = &lng
	}
	require.NoError(t, db.Create(&f.merchant).Error)
	f.program = models.LoyaltyProgram{
		MerchantID:      f.merchant.ID,
		Name:            "Coffee Card",
		RewardThreshold: opts.threshold,
		Status:          constants.ProgramStatusActive,
	}
	require.NoError(t, db.Create(&f.program).Error)
	f.customer = models.Customer{DisplayName: "Ada", Email: "ada@example.com", Status: constants.CustomerStatusActive}
	require.NoError(t, db.Create(&f.customer).Error)
	f.staff = Actor{ID: 7, Type: constants.ActorTypeStaff, MerchantID: f.merchant.ID}
	f.shopper = Actor{ID: f.customer.ID, Type: constants.ActorTypeCustomer}

	retry := RetryPolicy{MaxRetries: 5, Backoff: time.Millisecond}
	if opts.poolSize > 1 {
		retry.MaxRetries = 50
	}
	membershipRepo := repository.NewMembershipRepository(db)
	stampRepo := repository.NewStampEventRepository(db)
	programRepo := repository.NewProgramRepository(db)

	f.engine = NewRewardCycleEngine(RewardOptions{VoucherValidity: 24 * time.Hour})
	tokens, err := NewQRTokenService(repository.NewQRTokenRepository(db), TokenOptions{
		Secret:     "test-secret",
		DefaultTTL: map[string]time.Duration{constants.TokenPurposeJoin: 5 * time.Minute},
		MaxTTL:     time.Hour,
	}, retry, f.clock, f.metrics)
	require.NoError(t, err)
	f.tokens = tokens
	f.guard = NewFraudGuard(tokens, stampRepo, FraudOptions{
		GeofenceRadiusMeters: 150,
		StampCooldown:        opts.cooldown,
		AllowMissingGeo:      opts.allowNoGeo,
	}, f.clock)
	f.ledger = NewStampLedgerService(membershipRepo, stampRepo, programRepo, f.engine, f.notifier, retry, f.clock, f.metrics)
	f.redemption = NewRedemptionService(membershipRepo, repository.NewRedemptionRepository(db), programRepo, f.engine, f.notifier, retry, f.clock, f.metrics)
	f.scans = NewScanService(ScanServiceDeps{
		MembershipRepo: membershipRepo,
		ProgramRepo:    programRepo,
		CustomerRepo:   repository.NewCustomerRepository(db),
		Tokens:         tokens,
		Guard:          f.guard,
		Ledger:         f.ledger,
		Redemption:     f.redemption,
		Engine:         f.engine,
		Retry:          retry,
		Clock:          f.clock,
		Metrics:        f.metrics,
	})
	return f
}

// enroll 直接写入一张会员卡
func (f *ledgerFixture) enroll(t *testing.T) *models.Membership {
	t.Helper()
	now := f.clock.Now()
	membership := models.Membership{
		CustomerID:     f.customer.ID,
		ProgramID:      f.program.ID,
		Status:         constants.MembershipStatusInactive,
		CycleThreshold: f.program.RewardThreshold,
		CycleStartedAt: now.Add(-time.Minute),
		EnrolledAt:     now.Add(-time.Minute),
	}
	require.NoError(t, f.db.Create(&membership).Error)
	return &membership
}

func (f *ledgerFixture) stamp(t *testing.T, membershipID uint, txID string) *MembershipState {
	t.Helper()
	state, err := f.ledger.RecordStamp(context.Background(), RecordStampInput{
		MembershipID: membershipID,
		TxID:         txID,
		Actor:        f.staff.Label(),
	})
	require.NoError(t, err)
	return state
}

func (f *ledgerFixture) stampTimes(t *testing.T, membershipID uint, n int) *MembershipState {
	t.Helper()
	var state *MembershipState
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Minute)
		state = f.stamp(t, membershipID, fmt.Sprintf("tx-%d-%d", membershipID, f.clock.Now().UnixNano()))
	}
	return state
}

func (f *ledgerFixture) reload(t *testing.T, membershipID uint) *models.Membership {
	t.Helper()
	var membership models.Membership
	require.NoError(t, f.db.First(&membership, membershipID).Error)
	return &membership
}

func (f *ledgerFixture) issue(t *testing.T, purpose string, subjectID uint) string {
	t.Helper()
	issued, err := f.tokens.IssueToken(context.Background(), IssueTokenInput{
		Purpose:   purpose,
		SubjectID: subjectID,
		IssuedBy:  "test",
	})
	require.NoError(t, err)
	return issued.Token
}

func (f *ledgerFixture) countStampEvents(t *testing.T, membershipID uint) int64 {
	t.Helper()
	var total int64
	require.NoError(t, f.db.Model(&models.StampEvent{}).Where("membership_id = ?", membershipID).Count(&total).Error)
	return total
}

// counterValue 汇总指定计数器在所有标签下的值
func counterValue(t *testing.T, f *ledgerFixture, name string) float64 {
	t.Helper()
	families, err := f.metrics.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
