package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/clock"
	"github.com/formgate/formgate/internal/currency"
	feeddomain "github.com/formgate/formgate/internal/feed/domain"
	fulfillmentdomain "github.com/formgate/formgate/internal/fulfillment/domain"
	ledgerdomain "github.com/formgate/formgate/internal/ledger/domain"
	"github.com/formgate/formgate/internal/observability/metrics"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
	"github.com/formgate/formgate/internal/payment/checkout"
	"github.com/formgate/formgate/internal/payment/domain"
	"github.com/formgate/formgate/internal/payment/normalizer"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Orders       orderdomain.Repository
	Ledger       ledgerdomain.Repository
	Fulfillments fulfillmentdomain.Service
	Feeds        feeddomain.Service
	Normalizer   *normalizer.Normalizer
	Checkout     *checkout.Client
	Conv         *currency.Converter
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	orders       orderdomain.Repository
	ledger       ledgerdomain.Repository
	fulfillments fulfillmentdomain.Service
	feeds        feeddomain.Service
	normalizer   *normalizer.Normalizer
	checkout     *checkout.Client
	conv         *currency.Converter
	metrics      *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		orders:       p.Orders,
		ledger:       p.Ledger,
		fulfillments: p.Fulfillments,
		feeds:        p.Feeds,
		normalizer:   p.Normalizer,
		checkout:     p.Checkout,
		conv:         p.Conv,
		metrics:      p.Metrics,
	}
}

// ApplyAction is the single write path for payment state. One transaction
// covers the row lock, the idempotency registration and the order mutation,
// so racing delivery paths serialize on the order row and exactly one of them
// applies each event.
func (s *Service) ApplyAction(ctx context.Context, action *domain.PaymentAction) error {
	if action == nil || strings.TrimSpace(action.EventID) == "" || action.OrderID == 0 {
		return domain.ErrMalformedPayload
	}

	var (
		applied     *orderdomain.Order
		fulfillment *fulfillmentdomain.Fulfillment
		transition  orderdomain.PaymentStatus
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.orders.FindForUpdate(ctx, tx, action.OrderID)
		if err != nil {
			return err
		}

		registered, err := s.ledger.Register(ctx, tx, &ledgerdomain.Entry{
			ID:           s.genID.Generate(),
			EventID:      action.EventID,
			OrderID:      order.ID,
			Source:       string(action.Source),
			RegisteredAt: s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !registered {
			return domain.ErrDuplicateEvent
		}

		next, ok := action.Kind.Transitions(order.PaymentStatus)
		if !ok {
			// The event is registered but the order's current status wins.
			// A late decline after capture must not unpay the order.
			s.log.Info("payment action skipped by status guard",
				zap.Int64("order_id", int64(order.ID)),
				zap.String("event_id", action.EventID),
				zap.String("kind", string(action.Kind)),
				zap.String("status", string(order.PaymentStatus)),
			)
			return nil
		}

		order.PaymentStatus = next
		if id := strings.TrimSpace(action.TransactionID); id != "" {
			order.TransactionID = id
		}
		if method := strings.TrimSpace(action.PaymentMethod); method != "" {
			order.PaymentMethod = method
		}

		switch action.Kind {
		case domain.ActionCompletePayment:
			when := action.OccurredAt
			if when.IsZero() {
				when = s.clock.Now()
			}
			order.PaymentDate = &when
			if action.Amount.MinorUnits > 0 && action.Amount.Currency != "" {
				order.PaymentAmount = s.conv.FromMinorUnits(action.Amount.MinorUnits, action.Amount.Currency)
				order.Currency = action.Amount.Currency
			}
			order.Note = action.Note
			if order.Note == "" {
				order.Note = fmt.Sprintf("Payment completed for transaction %s.", order.TransactionID)
			}
			if action.ReadyToFulfill && !order.IsFulfilled {
				order.IsFulfilled = true
				record, err := s.fulfillments.Record(ctx, tx, order)
				if err != nil {
					return err
				}
				fulfillment = record
			}
		case domain.ActionFailPayment:
			if action.ErrorMessage != "" {
				order.Note = action.ErrorMessage
			} else if action.Note != "" {
				order.Note = action.Note
			}
		case domain.ActionAddPendingPayment:
			if action.Note != "" {
				order.Note = action.Note
			}
		}

		if err := s.orders.Update(ctx, tx, order); err != nil {
			return err
		}

		applied = order
		transition = next
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			s.metrics.RecordDuplicateEvent(ctx, string(action.Source))
		}
		return err
	}

	if applied == nil {
		return nil
	}

	s.metrics.RecordPaymentEvent(ctx, string(action.Source), string(action.Kind))

	switch transition {
	case orderdomain.StatusPaid:
		if fulfillment != nil {
			s.metrics.RecordFulfillment(ctx)
			s.fulfillments.NotifyCompleted(ctx, applied, fulfillment)
		}
	case orderdomain.StatusFailed:
		s.fulfillments.NotifyFailed(ctx, applied, applied.Note)
	}
	return nil
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, authorization string) error {
	event, err := normalizer.ParseWebhook(payload)
	if err != nil {
		return err
	}
	orderID, err := event.OrderID()
	if err != nil {
		return err
	}

	// Credentials resolve from the event's form metadata and the header is
	// checked before any order lookup. A caller without the webhook secret
	// cannot tell an unknown order apart from a known one.
	creds, err := s.feeds.CredentialsForForm(ctx, event.FormID())
	if err != nil {
		return err
	}
	if err := verifyWebhookAuth(creds.WebhookSecret, authorization); err != nil {
		return err
	}

	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return err
	}

	action, err := s.normalizer.FromWebhook(event, order)
	if err != nil {
		return err
	}
	return s.ApplyAction(ctx, action)
}

func (s *Service) ResolveReturn(ctx context.Context, orderID snowflake.ID, hint domain.UnverifiedHint) (*orderdomain.Order, error) {
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	creds, err := s.feeds.CredentialsForForm(ctx, order.FormID)
	if err != nil {
		return nil, err
	}

	details, err := s.checkout.Verify(ctx, creds, hint)
	if err != nil {
		return nil, err
	}

	action, err := s.normalizer.FromVerification(details, order)
	if err != nil {
		if errors.Is(err, domain.ErrValidationFailed) {
			// The order keeps its prior status for manual review; a mismatched
			// amount is never written as a failure.
			s.metrics.RecordVerificationFailure(ctx, "amount_mismatch")
			s.log.Warn("payment verification mismatch",
				zap.Int64("order_id", int64(order.ID)),
				zap.String("transaction_id", details.ID),
			)
		}
		return nil, err
	}

	if err := s.ApplyAction(ctx, action); err != nil && !errors.Is(err, domain.ErrDuplicateEvent) {
		return nil, err
	}
	return s.orders.FindByID(ctx, s.db, orderID)
}

func (s *Service) RelayCallback(ctx context.Context, payload []byte) error {
	if !json.Valid(payload) {
		return domain.ErrMalformedPayload
	}

	var probe struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return domain.ErrMalformedPayload
	}

	// The relay forwards either the processor's webhook envelope or the
	// payment object it fetched itself. Signature verification already
	// happened at the transport layer.
	if strings.TrimSpace(probe.Type) != "" {
		event, err := normalizer.ParseWebhook(payload)
		if err != nil {
			return err
		}
		orderID, err := event.OrderID()
		if err != nil {
			return err
		}
		order, err := s.orders.FindByID(ctx, s.db, orderID)
		if err != nil {
			return err
		}
		action, err := s.normalizer.FromWebhook(event, order)
		if err != nil {
			return err
		}
		action.Source = domain.SourceRelay
		return s.ApplyAction(ctx, action)
	}

	var details checkout.PaymentDetails
	if err := json.Unmarshal(payload, &details); err != nil {
		return domain.ErrMalformedPayload
	}
	orderID, err := normalizer.OrderIDFromMetadata(details.Metadata)
	if err != nil {
		return err
	}
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	action, err := s.normalizer.FromRelay(&details, order)
	if err != nil {
		return err
	}
	return s.ApplyAction(ctx, action)
}

func (s *Service) OrderDetails(ctx context.Context, orderID snowflake.ID) (*domain.OrderDetails, error) {
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == orderdomain.StatusPaid {
		return nil, domain.ErrOrderAlreadyPaid
	}

	creds, err := s.feeds.CredentialsForForm(ctx, order.FormID)
	if err != nil {
		return nil, err
	}

	return &domain.OrderDetails{
		OrderID:       order.ID,
		FormID:        order.FormID,
		AmountMinor:   s.conv.ToMinorUnits(order.PaymentAmount, order.Currency),
		Currency:      strings.ToUpper(order.Currency),
		Reference:     order.ID.String(),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		PublicKey:     creds.PublicKey,
		Mode:          creds.Mode,
	}, nil
}

func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.SessionResult, error) {
	order, err := s.orders.FindByID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == orderdomain.StatusPaid {
		return nil, domain.ErrOrderAlreadyPaid
	}

	creds, err := s.feeds.CredentialsForForm(ctx, order.FormID)
	if err != nil {
		return nil, err
	}

	session, err := s.checkout.CreateSession(ctx, creds, checkout.SessionRequest{
		Amount:     s.conv.ToMinorUnits(order.PaymentAmount, order.Currency),
		Currency:   order.Currency,
		Reference:  order.ID.String(),
		FormID:     order.FormID,
		EntryID:    order.ID.String(),
		Email:      order.CustomerEmail,
		Name:       order.CustomerName,
		Country:    req.Country,
		SuccessURL: req.SuccessURL,
		FailureURL: req.FailureURL,
	})
	if err != nil {
		return nil, err
	}

	// Move the order to processing so racing callbacks start from a defined
	// state. Paid and pending orders are left alone.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.orders.FindForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus != orderdomain.StatusUnpaid && locked.PaymentStatus != orderdomain.StatusFailed {
			return nil
		}
		locked.PaymentStatus = orderdomain.StatusProcessing
		return s.orders.Update(ctx, tx, locked)
	})
	if err != nil {
		return nil, err
	}

	result := &domain.SessionResult{
		SessionID: session.ID,
		Token:     session.PaymentSessionToken,
	}
	if link, ok := session.Links["redirect"]; ok {
		result.RedirectURL = link.Href
	}
	return result, nil
}

// verifyWebhookAuth compares the delivery's Authorization header against the
// configured webhook secret. No configured secret means no check, matching
// processor setups where header auth is optional.
func verifyWebhookAuth(secret, authorization string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	authorization = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authorization), "Bearer "))
	if authorization == "" {
		return domain.ErrUnauthenticated
	}
	want := sha256.Sum256([]byte(secret))
	got := sha256.Sum256([]byte(authorization))
	if !hmac.Equal(want[:], got[:]) {
		return domain.ErrUnauthenticated
	}
	return nil
}
