package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/clock"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/currency"
	feedrepo "github.com/formgate/formgate/internal/feed/repository"
	feedservice "github.com/formgate/formgate/internal/feed/service"
	fulfillmentrepo "github.com/formgate/formgate/internal/fulfillment/repository"
	fulfillmentservice "github.com/formgate/formgate/internal/fulfillment/service"
	ledgerrepo "github.com/formgate/formgate/internal/ledger/repository"
	"github.com/formgate/formgate/internal/observability/metrics"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
	orderrepo "github.com/formgate/formgate/internal/order/repository"
	"github.com/formgate/formgate/internal/payment/domain"
	"github.com/formgate/formgate/internal/payment/normalizer"
	paymentservice "github.com/formgate/formgate/internal/payment/service"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sentMail struct {
	To      []string
	Subject string
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []sentMail
}

func (r *recordingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{To: to, Subject: subject})
	return nil
}

func (r *recordingEmail) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			form_id BIGINT NOT NULL,
			form_title TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			payment_amount REAL NOT NULL,
			currency TEXT NOT NULL,
			is_fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
			transaction_id TEXT,
			payment_method TEXT,
			payment_date DATETIME,
			note TEXT,
			customer_name TEXT,
			customer_email TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payment_event_ledger (
			id BIGINT PRIMARY KEY,
			event_id TEXT NOT NULL,
			order_id BIGINT NOT NULL,
			source TEXT NOT NULL,
			registered_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payment_event_ledger_event_id ON payment_event_ledger(event_id)`,
		`CREATE TABLE fulfillments (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			reference TEXT NOT NULL,
			form_slug TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_fulfillments_order_id ON fulfillments(order_id)`,
		`CREATE TABLE feeds (
			id BIGINT PRIMARY KEY,
			form_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			use_override BOOLEAN NOT NULL DEFAULT FALSE,
			encrypted_config TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_feeds_form_id ON feeds(form_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	email *recordingEmail
	svc   domain.Service
}

func newFixture(t *testing.T, global config.CheckoutConfig) *fixture {
	t.Helper()
	return newFixtureWithMetrics(t, global, nil)
}

func newFixtureWithMetrics(t *testing.T, global config.CheckoutConfig, m *metrics.Metrics) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	mail := &recordingEmail{}
	cfg := config.Config{
		Checkout:         global,
		FeedConfigSecret: "feed-secret",
		Email:            config.EmailConfig{AdminAddress: "admin@example.test"},
	}

	conv := currency.NewStaticConverter(config.DefaultCurrencyTable())

	fulfillSvc := fulfillmentservice.New(fulfillmentservice.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  fulfillmentrepo.Provide(),
		Email: mail,
		Cfg:   cfg,
	})

	feedSvc := feedservice.New(feedservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  feedrepo.Provide(),
		Cfg:   cfg,
	})

	svc := paymentservice.New(paymentservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fakeClock,
		Orders:       orderrepo.Provide(),
		Ledger:       ledgerrepo.Provide(),
		Fulfillments: fulfillSvc,
		Feeds:        feedSvc,
		Normalizer:   normalizer.New(conv, normalizer.NewRegistry(nil)),
		Conv:         conv,
		Metrics:      m,
	})

	return &fixture{db: db, node: node, clock: fakeClock, email: mail, svc: svc}
}

func (f *fixture) seedOrder(t *testing.T, status orderdomain.PaymentStatus) *orderdomain.Order {
	t.Helper()

	order := &orderdomain.Order{
		ID:            f.node.Generate(),
		FormID:        7,
		FormTitle:     "Conference Registration",
		PaymentStatus: status,
		PaymentAmount: 100,
		Currency:      "USD",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.test",
	}
	if err := orderrepo.Provide().Create(context.Background(), f.db, order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (f *fixture) order(t *testing.T, id snowflake.ID) *orderdomain.Order {
	t.Helper()

	order, err := orderrepo.Provide().FindByID(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func (f *fixture) count(t *testing.T, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := f.db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

func webhookPayload(eventID, eventType, transactionID string, orderID snowflake.ID, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"data":{"id":%q,"amount":%d,"currency":"USD","metadata":{"entry_id":%q,"form_id":7}}}`,
		eventID, eventType, transactionID, amount, orderID.String(),
	))
}

func TestWebhookCapturedMarksOrderPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	payload := webhookPayload("evt_1", "payment_captured", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, payload, ""); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	got := f.order(t, order.ID)
	if got.PaymentStatus != orderdomain.StatusPaid {
		t.Fatalf("expected paid, got %q", got.PaymentStatus)
	}
	if !got.IsFulfilled {
		t.Fatal("expected order to be fulfilled")
	}
	if got.TransactionID != "pay_1" {
		t.Fatalf("expected transaction id pay_1, got %q", got.TransactionID)
	}
	if got.PaymentDate == nil {
		t.Fatal("expected payment date to be set")
	}
	if n := f.count(t, `SELECT COUNT(1) FROM fulfillments WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 fulfillment, got %d", n)
	}
	if n := f.count(t, `SELECT COUNT(1) FROM payment_event_ledger WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
	// receipt to the customer plus the admin notification
	if f.email.count() != 2 {
		t.Fatalf("expected 2 mails, got %d", f.email.count())
	}
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	payload := webhookPayload("evt_1", "payment_captured", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, payload, ""); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := f.svc.IngestWebhook(ctx, payload, "")
	if err != domain.ErrDuplicateEvent {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}

	if n := f.count(t, `SELECT COUNT(1) FROM payment_event_ledger WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
	if n := f.count(t, `SELECT COUNT(1) FROM fulfillments WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 fulfillment, got %d", n)
	}
	if f.email.count() != 2 {
		t.Fatalf("replay must not resend mail, got %d mails", f.email.count())
	}
}

func TestDistinctCompletionEventsFulfillOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	approved := webhookPayload("evt_approved", "payment_approved", "pay_1", order.ID, 10000)
	captured := webhookPayload("evt_captured", "payment_captured", "pay_1", order.ID, 10000)

	if err := f.svc.IngestWebhook(ctx, approved, ""); err != nil {
		t.Fatalf("approved: %v", err)
	}
	if err := f.svc.IngestWebhook(ctx, captured, ""); err != nil {
		t.Fatalf("captured: %v", err)
	}

	got := f.order(t, order.ID)
	if got.PaymentStatus != orderdomain.StatusPaid {
		t.Fatalf("expected paid, got %q", got.PaymentStatus)
	}
	// Both events registered, exactly one fulfillment.
	if n := f.count(t, `SELECT COUNT(1) FROM payment_event_ledger WHERE order_id = ?`, order.ID); n != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", n)
	}
	if n := f.count(t, `SELECT COUNT(1) FROM fulfillments WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 fulfillment, got %d", n)
	}
}

func TestLateDeclineDoesNotUnpayOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	captured := webhookPayload("evt_captured", "payment_captured", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, captured, ""); err != nil {
		t.Fatalf("captured: %v", err)
	}

	declined := webhookPayload("evt_declined", "payment_declined", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, declined, ""); err != nil {
		t.Fatalf("declined: %v", err)
	}

	got := f.order(t, order.ID)
	if got.PaymentStatus != orderdomain.StatusPaid {
		t.Fatalf("late decline must not unpay the order, got %q", got.PaymentStatus)
	}
	if !got.IsFulfilled {
		t.Fatal("fulfillment must survive a late decline")
	}
}

func TestPendingThenFailTransitionsToFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusUnpaid)

	pending := webhookPayload("evt_pending", "payment_pending", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, pending, ""); err != nil {
		t.Fatalf("pending: %v", err)
	}
	if got := f.order(t, order.ID); got.PaymentStatus != orderdomain.StatusPending {
		t.Fatalf("expected pending, got %q", got.PaymentStatus)
	}

	declined := webhookPayload("evt_declined", "payment_declined", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, declined, ""); err != nil {
		t.Fatalf("declined: %v", err)
	}

	got := f.order(t, order.ID)
	if got.PaymentStatus != orderdomain.StatusFailed {
		t.Fatalf("expected failed, got %q", got.PaymentStatus)
	}
	if got.IsFulfilled {
		t.Fatal("failed order must not be fulfilled")
	}
	// failure notice to the customer
	if f.email.count() != 1 {
		t.Fatalf("expected 1 mail, got %d", f.email.count())
	}
}

func TestWebhookAuthMismatchRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test", WebhookSecret: "whsec_expected"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	payload := webhookPayload("evt_1", "payment_captured", "pay_1", order.ID, 10000)
	err := f.svc.IngestWebhook(ctx, payload, "whsec_wrong")
	if err != domain.ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	if n := f.count(t, `SELECT COUNT(1) FROM payment_event_ledger WHERE order_id = ?`, order.ID); n != 0 {
		t.Fatalf("rejected delivery must not register events, got %d", n)
	}
	if got := f.order(t, order.ID); got.PaymentStatus != orderdomain.StatusProcessing {
		t.Fatalf("rejected delivery must not change status, got %q", got.PaymentStatus)
	}
}

func TestWebhookAuthAcceptsConfiguredSecret(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test", WebhookSecret: "whsec_expected"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	payload := webhookPayload("evt_1", "payment_captured", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, payload, "whsec_expected"); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}
	if got := f.order(t, order.ID); got.PaymentStatus != orderdomain.StatusPaid {
		t.Fatalf("expected paid, got %q", got.PaymentStatus)
	}
}

func TestWebhookForUnknownOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})

	payload := webhookPayload("evt_1", "payment_captured", "pay_1", f.node.Generate(), 10000)
	err := f.svc.IngestWebhook(ctx, payload, "")
	if err != orderdomain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnhandledWebhookKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	payload := webhookPayload("evt_1", "payment_refund_pending", "pay_1", order.ID, 10000)
	err := f.svc.IngestWebhook(ctx, payload, "")
	if err != domain.ErrUnhandledEventKind {
		t.Fatalf("expected ErrUnhandledEventKind, got %v", err)
	}
}

func TestRelayCallbackWithPaymentDetails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	// Capture-in-flight statuses settle on the relay path.
	payload := []byte(fmt.Sprintf(
		`{"id":"pay_9","status":"Partially Captured","amount":10000,"currency":"USD","source":{"type":"card","scheme":"Visa"},"metadata":{"entry_id":%q}}`,
		order.ID.String(),
	))
	if err := f.svc.RelayCallback(ctx, payload); err != nil {
		t.Fatalf("relay callback: %v", err)
	}

	got := f.order(t, order.ID)
	if got.PaymentStatus != orderdomain.StatusPaid {
		t.Fatalf("expected paid, got %q", got.PaymentStatus)
	}
	if got.PaymentMethod != "Visa" {
		t.Fatalf("expected payment method Visa, got %q", got.PaymentMethod)
	}
}

func TestRelayCallbackWithWebhookEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	payload := webhookPayload("evt_relay", "payment_declined", "pay_1", order.ID, 10000)
	if err := f.svc.RelayCallback(ctx, payload); err != nil {
		t.Fatalf("relay callback: %v", err)
	}

	got := f.order(t, order.ID)
	if got.PaymentStatus != orderdomain.StatusFailed {
		t.Fatalf("expected failed, got %q", got.PaymentStatus)
	}

	var source string
	if err := f.db.Raw(`SELECT source FROM payment_event_ledger WHERE order_id = ?`, order.ID).Scan(&source).Error; err != nil {
		t.Fatalf("read ledger source: %v", err)
	}
	if source != string(domain.SourceRelay) {
		t.Fatalf("expected relay source, got %q", source)
	}
}

func TestOrderDetailsRejectsPaidOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test", PublicKey: "pk_test", Mode: config.ModeTest})
	order := f.seedOrder(t, orderdomain.StatusPaid)

	_, err := f.svc.OrderDetails(ctx, order.ID)
	if err != domain.ErrOrderAlreadyPaid {
		t.Fatalf("expected ErrOrderAlreadyPaid, got %v", err)
	}
}

func TestOrderDetailsExposesMinorUnits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test", PublicKey: "pk_test", Mode: config.ModeTest})
	order := f.seedOrder(t, orderdomain.StatusUnpaid)

	details, err := f.svc.OrderDetails(ctx, order.ID)
	if err != nil {
		t.Fatalf("order details: %v", err)
	}
	if details.AmountMinor != 10000 {
		t.Fatalf("expected 10000 minor units, got %d", details.AmountMinor)
	}
	if details.Currency != "USD" {
		t.Fatalf("expected USD, got %q", details.Currency)
	}
	if details.PublicKey != "pk_test" {
		t.Fatalf("expected public key from credentials, got %q", details.PublicKey)
	}
	if details.Reference != order.ID.String() {
		t.Fatalf("expected reference %q, got %q", order.ID.String(), details.Reference)
	}
}

func TestApplyActionRequiresEventID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	err := f.svc.ApplyAction(ctx, &domain.PaymentAction{
		Kind:    domain.ActionCompletePayment,
		OrderID: order.ID,
	})
	if err != domain.ErrMalformedPayload {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestPendingOnProcessingOrderKeepsStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	pending := webhookPayload("evt_pending", "payment_pending", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, pending, ""); err != nil {
		t.Fatalf("pending: %v", err)
	}

	if got := f.order(t, order.ID); got.PaymentStatus != orderdomain.StatusProcessing {
		t.Fatalf("pending on a processing order must keep processing, got %q", got.PaymentStatus)
	}
	// The event is still registered so a replay stays idempotent.
	if n := f.count(t, `SELECT COUNT(1) FROM payment_event_ledger WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
}

func TestConcurrentDuplicateDeliveriesApplyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test"})
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	// One pooled connection keeps sqlite's shared cache out of the picture;
	// the race is between the two delivery paths, not the driver.
	sqlDB, err := f.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	payload := webhookPayload("evt_1", "payment_captured", "pay_1", order.ID, 10000)
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.svc.IngestWebhook(ctx, payload, "")
		}()
	}
	wg.Wait()
	close(results)

	var wins, duplicates int
	for err := range results {
		switch err {
		case nil:
			wins++
		case domain.ErrDuplicateEvent:
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || duplicates != 1 {
		t.Fatalf("expected one winner and one duplicate, got %d and %d", wins, duplicates)
	}

	got := f.order(t, order.ID)
	if got.PaymentStatus != orderdomain.StatusPaid {
		t.Fatalf("expected paid, got %q", got.PaymentStatus)
	}
	if n := f.count(t, `SELECT COUNT(1) FROM payment_event_ledger WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
	if n := f.count(t, `SELECT COUNT(1) FROM fulfillments WHERE order_id = ?`, order.ID); n != 1 {
		t.Fatalf("expected 1 fulfillment, got %d", n)
	}
	if f.email.count() != 2 {
		t.Fatalf("expected 2 mails from the single winner, got %d", f.email.count())
	}
}

func TestWebhookAuthCheckedBeforeOrderLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.CheckoutConfig{SecretKey: "sk_test", WebhookSecret: "whsec_expected"})

	// No such order exists. A caller with a bad header gets the same answer
	// either way instead of a not-found oracle.
	payload := webhookPayload("evt_1", "payment_captured", "pay_1", f.node.Generate(), 10000)
	err := f.svc.IngestWebhook(ctx, payload, "whsec_wrong")
	if err != domain.ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if n := f.count(t, `SELECT COUNT(1) FROM payment_event_ledger`); n != 0 {
		t.Fatalf("rejected delivery must not register events, got %d", n)
	}

	// With the right secret the unknown order surfaces as usual.
	err = f.svc.IngestWebhook(ctx, payload, "whsec_expected")
	if err != orderdomain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("expected int64 sum for %s, got %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestStatusGuardSkipsAreNotCountedAsApplied(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := metrics.New(metrics.Config{ServiceName: "formgate"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	f := newFixtureWithMetrics(t, config.CheckoutConfig{SecretKey: "sk_test"}, m)
	order := f.seedOrder(t, orderdomain.StatusProcessing)

	captured := webhookPayload("evt_captured", "payment_captured", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, captured, ""); err != nil {
		t.Fatalf("captured: %v", err)
	}
	if got := counterValue(t, reader, "formgate_payment_events_total"); got != 1 {
		t.Fatalf("expected 1 applied event, got %d", got)
	}

	// Late decline is registered but skipped by the status guard.
	declined := webhookPayload("evt_declined", "payment_declined", "pay_1", order.ID, 10000)
	if err := f.svc.IngestWebhook(ctx, declined, ""); err != nil {
		t.Fatalf("declined: %v", err)
	}
	if got := counterValue(t, reader, "formgate_payment_events_total"); got != 1 {
		t.Fatalf("skipped action must not count as applied, got %d", got)
	}

	// A genuine replay counts on the duplicate counter instead.
	if err := f.svc.IngestWebhook(ctx, captured, ""); err != domain.ErrDuplicateEvent {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
	if got := counterValue(t, reader, "formgate_duplicate_events_total"); got != 1 {
		t.Fatalf("expected 1 duplicate event, got %d", got)
	}
}
