package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/clock"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/fulfillment/domain"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
	"github.com/formgate/formgate/internal/providers/email"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Email email.Provider
	Cfg   config.Config
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	email      email.Provider
	adminEmail string
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("fulfillment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		email:      p.Email,
		adminEmail: strings.TrimSpace(p.Cfg.Email.AdminAddress),
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (*domain.Fulfillment, error) {
	now := s.clock.Now()
	fulfillment := &domain.Fulfillment{
		ID:        s.genID.Generate(),
		OrderID:   order.ID,
		Reference: ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		FormSlug:  slug.Make(order.FormTitle),
		CreatedAt: now,
	}

	created, err := s.repo.Insert(ctx, tx, fulfillment)
	if err != nil {
		return nil, err
	}
	if !created {
		// The order was fulfilled by an earlier event; reuse its record.
		return s.repo.FindByOrderID(ctx, tx, order.ID)
	}
	return fulfillment, nil
}

func (s *Service) NotifyCompleted(ctx context.Context, order *orderdomain.Order, fulfillment *domain.Fulfillment) {
	reference := ""
	if fulfillment != nil {
		reference = fulfillment.Reference
	}

	if to := strings.TrimSpace(order.CustomerEmail); to != "" {
		subject := fmt.Sprintf("Payment received for %s", order.FormTitle)
		body := fmt.Sprintf(
			"<p>Hi %s,</p><p>We received your payment of %.2f %s.</p><p>Receipt reference: %s</p>",
			order.CustomerName, order.PaymentAmount, order.Currency, reference,
		)
		if err := s.email.Send(ctx, []string{to}, subject, body); err != nil {
			s.log.Warn("receipt email failed",
				zap.Int64("order_id", int64(order.ID)),
				zap.Error(err),
			)
		}
	}

	if s.adminEmail != "" {
		subject := fmt.Sprintf("Order %d paid", order.ID)
		body := fmt.Sprintf(
			"<p>Order %d (%s) is paid: %.2f %s, transaction %s.</p>",
			order.ID, order.FormTitle, order.PaymentAmount, order.Currency, order.TransactionID,
		)
		if err := s.email.Send(ctx, []string{s.adminEmail}, subject, body); err != nil {
			s.log.Warn("admin notification failed",
				zap.Int64("order_id", int64(order.ID)),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) NotifyFailed(ctx context.Context, order *orderdomain.Order, reason string) {
	to := strings.TrimSpace(order.CustomerEmail)
	if to == "" {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = "The payment could not be completed."
	}
	subject := fmt.Sprintf("Payment failed for %s", order.FormTitle)
	body := fmt.Sprintf("<p>Hi %s,</p><p>%s</p><p>You can try again from the original form.</p>",
		order.CustomerName, reason)
	if err := s.email.Send(ctx, []string{to}, subject, body); err != nil {
		s.log.Warn("failure email failed",
			zap.Int64("order_id", int64(order.ID)),
			zap.Error(err),
		)
	}
}
