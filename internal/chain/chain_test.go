package chain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbpkg "metrikabridge/internal/db"
	"metrikabridge/internal/metrika"
)

// fakeSender counts dispatched hits and fails on demand.
type fakeSender struct {
	configured bool

	pageviews int
	events    int
	purchases int

	failPageview bool
	failPurchase bool
	failEvent    bool

	// failForClient makes purchase sends fail for one client id only.
	failForClient string
	lastPurchase  metrika.Purchase
}

func (f *fakeSender) Configured() bool { return f.configured }

func (f *fakeSender) SendPageview(p metrika.Pageview) bool {
	f.pageviews++
	return !f.failPageview
}

func (f *fakeSender) SendEvent(e metrika.Event) bool {
	f.events++
	return !f.failEvent
}

func (f *fakeSender) SendEcommercePurchase(p metrika.Purchase) bool {
	f.purchases++
	f.lastPurchase = p
	if f.failForClient != "" && p.ClientID == f.failForClient {
		return false
	}
	return !f.failPurchase
}

func newTestOrchestrator(t *testing.T, sender metrika.Sender) (*Orchestrator, *gorm.DB) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, dbpkg.Migrate(gdb))

	return &Orchestrator{
		db:           gdb,
		sender:       sender,
		purchasePage: "https://t.me/test_bot/purchase",
	}, gdb
}

func seedTracking(t *testing.T, gdb *gorm.DB, userID int64, clientID string, lastVisitAge time.Duration) {
	t.Helper()
	_, err := dbpkg.UpsertTracking(gdb, userID, clientID, "12345678")
	require.NoError(t, err)
	if lastVisitAge > 0 {
		old := time.Now().UTC().Add(-lastVisitAge)
		require.NoError(t, gdb.Model(&dbpkg.Tracking{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{"first_visit_time": old, "last_visit_time": old}).Error)
	}
}

func TestChainUnconfiguredSender(t *testing.T) {
	sender := &fakeSender{configured: false}
	orch, gdb := newTestOrchestrator(t, sender)
	seedTracking(t, gdb, 1, "1234567890123456789", 0)

	assert.False(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))
	assert.Zero(t, sender.purchases)
}

func TestChainNoTracking(t *testing.T) {
	sender := &fakeSender{configured: true}
	orch, gdb := newTestOrchestrator(t, sender)

	assert.False(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))
	assert.Zero(t, sender.purchases)

	has, err := dbpkg.HasConversion(gdb, 1, "pay_1")
	require.NoError(t, err)
	assert.False(t, has, "no conversion may be persisted without tracking")
}

func TestChainOpenVisitSkipsPageview(t *testing.T) {
	sender := &fakeSender{configured: true}
	orch, gdb := newTestOrchestrator(t, sender)
	seedTracking(t, gdb, 1, "1234567890123456789", 0)

	require.True(t, orch.RunConversionChain(1, 450, "pay_1", 3, "PROMO"))
	assert.Zero(t, sender.pageviews, "open visit must not trigger a pageview")
	assert.Equal(t, 1, sender.purchases)
	assert.Equal(t, 1, sender.events)

	assert.Equal(t, "pay_1", sender.lastPurchase.TransactionID)
	assert.Equal(t, "PROMO", sender.lastPurchase.Coupon)
	require.Len(t, sender.lastPurchase.Products, 1)
	assert.Equal(t, "subscription_3m", sender.lastPurchase.Products[0].ID)
	assert.Equal(t, "Subscription", sender.lastPurchase.Products[0].Category)

	has, err := dbpkg.HasConversion(gdb, 1, "pay_1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestChainClosedVisitReopensWithPageview(t *testing.T) {
	sender := &fakeSender{configured: true}
	orch, gdb := newTestOrchestrator(t, sender)
	seedTracking(t, gdb, 1, "1234567890123456789", 13*time.Hour)

	require.True(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))
	assert.Equal(t, 1, sender.pageviews)
	assert.Equal(t, 1, sender.purchases)

	tracking, err := dbpkg.GetTracking(gdb, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, tracking.VisitCount, "reopening pageview counts as a reconciled visit")
}

func TestChainPageviewFailureAborts(t *testing.T) {
	sender := &fakeSender{configured: true, failPageview: true}
	orch, gdb := newTestOrchestrator(t, sender)
	seedTracking(t, gdb, 1, "1234567890123456789", 13*time.Hour)

	assert.False(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))
	assert.Zero(t, sender.purchases, "purchase must not be sent without an open visit")

	has, err := dbpkg.HasConversion(gdb, 1, "pay_1")
	require.NoError(t, err)
	assert.False(t, has)

	tracking, err := dbpkg.GetTracking(gdb, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tracking.VisitCount, "failed pageview must not count a visit")
}

func TestChainPurchaseFailureLeavesNoRecord(t *testing.T) {
	sender := &fakeSender{configured: true, failPurchase: true}
	orch, gdb := newTestOrchestrator(t, sender)
	seedTracking(t, gdb, 1, "1234567890123456789", 0)

	assert.False(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))
	assert.Zero(t, sender.events, "goal must not fire after a failed purchase send")

	has, err := dbpkg.HasConversion(gdb, 1, "pay_1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestChainGoalFailureIsBestEffort(t *testing.T) {
	sender := &fakeSender{configured: true, failEvent: true}
	orch, gdb := newTestOrchestrator(t, sender)
	seedTracking(t, gdb, 1, "1234567890123456789", 0)

	assert.True(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))

	has, err := dbpkg.HasConversion(gdb, 1, "pay_1")
	require.NoError(t, err)
	assert.True(t, has, "goal failure must not abort the chain")
}

func TestChainDuplicatePaymentIsIdempotent(t *testing.T) {
	sender := &fakeSender{configured: true}
	orch, _ := newTestOrchestrator(t, sender)
	seedTracking(t, orch.db, 1, "1234567890123456789", 0)

	require.True(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))
	require.True(t, orch.RunConversionChain(1, 450, "pay_1", 1, ""))

	assert.Equal(t, 1, sender.purchases, "second run must not re-send the purchase")
}

func TestChainTrialCategory(t *testing.T) {
	sender := &fakeSender{configured: true}
	orch, gdb := newTestOrchestrator(t, sender)
	seedTracking(t, gdb, 1, "1234567890123456789", 0)

	require.True(t, orch.RunConversionChain(1, 0, "pay_1", 1, ""))
	require.Len(t, sender.lastPurchase.Products, 1)
	assert.Equal(t, "Trial", sender.lastPurchase.Products[0].Category)
}

func TestResendMissingConversions(t *testing.T) {
	sender := &fakeSender{configured: true, failForClient: "3333333333333333333"}
	orch, gdb := newTestOrchestrator(t, sender)

	seedTracking(t, gdb, 1, "1111111111111111111", 0)
	seedTracking(t, gdb, 2, "2222222222222222222", 0)
	seedTracking(t, gdb, 3, "3333333333333333333", 0)

	for _, p := range []dbpkg.Payment{
		{UserID: 1, PaymentID: "pay_1", Amount: 100, SubscriptionMonths: 1, Status: "succeeded"},
		{UserID: 2, PaymentID: "pay_2", Amount: 200, SubscriptionMonths: 1, Status: "succeeded"},
		{UserID: 3, PaymentID: "pay_3", Amount: 300, SubscriptionMonths: 1, Status: "succeeded"},
	} {
		payment := p
		require.NoError(t, dbpkg.RecordPayment(gdb, &payment))
	}

	result := orch.ResendMissingConversions(50)
	assert.Equal(t, ResendResult{Processed: 3, Success: 2, Failed: 1}, result)

	// The failed payment stays on the worklist for the next batch.
	missing, err := dbpkg.UnconvertedPayments(gdb, 50)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "pay_3", missing[0].PaymentID)
}

func TestResendRespectsLimit(t *testing.T) {
	sender := &fakeSender{configured: true}
	orch, gdb := newTestOrchestrator(t, sender)

	seedTracking(t, gdb, 1, "1111111111111111111", 0)
	seedTracking(t, gdb, 2, "2222222222222222222", 0)
	p1 := dbpkg.Payment{UserID: 1, PaymentID: "pay_1", Amount: 100, Status: "succeeded"}
	p2 := dbpkg.Payment{UserID: 2, PaymentID: "pay_2", Amount: 200, Status: "succeeded"}
	require.NoError(t, dbpkg.RecordPayment(gdb, &p1))
	require.NoError(t, dbpkg.RecordPayment(gdb, &p2))

	result := orch.ResendMissingConversions(1)
	assert.Equal(t, 1, result.Processed)
}
