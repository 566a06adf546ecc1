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
	"github.com/formgate/formgate/internal/fulfillment/domain"
	fulfillmentrepo "github.com/formgate/formgate/internal/fulfillment/repository"
	fulfillmentservice "github.com/formgate/formgate/internal/fulfillment/service"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingEmail struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_fulfillment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE fulfillments (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			reference TEXT NOT NULL,
			form_slug TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_fulfillments_order_id ON fulfillments(order_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, mail *recordingEmail) (domain.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := fulfillmentservice.New(fulfillmentservice.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  fulfillmentrepo.Provide(),
		Email: mail,
		Cfg:   config.Config{Email: config.EmailConfig{AdminAddress: "admin@example.test"}},
	})
	return svc, node
}

func testOrder(node *snowflake.Node) *orderdomain.Order {
	return &orderdomain.Order{
		ID:            node.Generate(),
		FormID:        7,
		FormTitle:     "Conference Registration",
		PaymentStatus: orderdomain.StatusPaid,
		PaymentAmount: 100,
		Currency:      "USD",
		TransactionID: "pay_1",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.test",
	}
}

func TestRecordCreatesSluggedFulfillment(t *testing.T) {
	db := setupTestDB(t)
	svc, node := newService(t, &recordingEmail{})
	order := testOrder(node)

	got, err := svc.Record(context.Background(), db, order)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got.FormSlug != "conference-registration" {
		t.Fatalf("expected slugged form title, got %q", got.FormSlug)
	}
	if len(got.Reference) != 26 {
		t.Fatalf("expected ulid reference, got %q", got.Reference)
	}
}

func TestRecordIsIdempotentPerOrder(t *testing.T) {
	db := setupTestDB(t)
	svc, node := newService(t, &recordingEmail{})
	order := testOrder(node)

	first, err := svc.Record(context.Background(), db, order)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	second, err := svc.Record(context.Background(), db, order)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}

	if first.Reference != second.Reference {
		t.Fatalf("expected the original reference back, got %q and %q", first.Reference, second.Reference)
	}
	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM fulfillments WHERE order_id = ?`, order.ID).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 fulfillment, got %d", count)
	}
}

func TestNotifyCompletedMailsCustomerAndAdmin(t *testing.T) {
	mail := &recordingEmail{}
	svc, node := newService(t, mail)
	order := testOrder(node)

	svc.NotifyCompleted(context.Background(), order, &domain.Fulfillment{Reference: "01J0000000000000000000000"})

	if len(mail.subjects) != 2 {
		t.Fatalf("expected 2 mails, got %d", len(mail.subjects))
	}
	if mail.subjects[0] != "Payment received for Conference Registration" {
		t.Fatalf("unexpected receipt subject %q", mail.subjects[0])
	}
}

func TestNotifyFailedSkipsOrdersWithoutEmail(t *testing.T) {
	mail := &recordingEmail{}
	svc, node := newService(t, mail)
	order := testOrder(node)
	order.CustomerEmail = ""

	svc.NotifyFailed(context.Background(), order, "The issuer has declined the transaction.")

	if len(mail.subjects) != 0 {
		t.Fatalf("expected no mail, got %d", len(mail.subjects))
	}
}
