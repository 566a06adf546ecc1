package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/config"
	feeddomain "github.com/formgate/formgate/internal/feed/domain"
	feedrepo "github.com/formgate/formgate/internal/feed/repository"
	feedservice "github.com/formgate/formgate/internal/feed/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_feed_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
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

func newService(t *testing.T, db *gorm.DB, global config.CheckoutConfig, secret string) feeddomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return feedservice.New(feedservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  feedrepo.Provide(),
		Cfg: config.Config{
			Checkout:         global,
			FeedConfigSecret: secret,
		},
	})
}

func TestCredentialsFallBackToGlobal(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	global := config.CheckoutConfig{SecretKey: "sk_global", Mode: config.ModeTest}
	svc := newService(t, db, global, "feed-secret")

	creds, err := svc.CredentialsForForm(ctx, 42)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.SecretKey != "sk_global" {
		t.Fatalf("expected global secret key, got %q", creds.SecretKey)
	}
}

func TestOverrideReplacesGlobalWholesale(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	global := config.CheckoutConfig{
		SecretKey:           "sk_global",
		ProcessingChannelID: "pc_global",
		WebhookSecret:       "whsec_global",
		Mode:                config.ModeLive,
	}
	svc := newService(t, db, global, "feed-secret")

	if _, err := svc.SaveOverride(ctx, feeddomain.SaveOverrideRequest{
		FormID:      42,
		Name:        "donations",
		IsActive:    true,
		UseOverride: true,
		Credentials: config.CheckoutConfig{SecretKey: "sk_feed", Mode: config.ModeTest},
	}); err != nil {
		t.Fatalf("save override: %v", err)
	}

	creds, err := svc.CredentialsForForm(ctx, 42)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.SecretKey != "sk_feed" {
		t.Fatalf("expected override secret key, got %q", creds.SecretKey)
	}
	if creds.ProcessingChannelID != "" || creds.WebhookSecret != "" {
		t.Fatalf("override must replace the global set wholesale, got %+v", creds)
	}
	if creds.Mode != config.ModeTest {
		t.Fatalf("expected test mode, got %q", creds.Mode)
	}
}

func TestInactiveFeedUsesGlobal(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	global := config.CheckoutConfig{SecretKey: "sk_global"}
	svc := newService(t, db, global, "feed-secret")

	if _, err := svc.SaveOverride(ctx, feeddomain.SaveOverrideRequest{
		FormID:      42,
		Name:        "donations",
		IsActive:    false,
		UseOverride: true,
		Credentials: config.CheckoutConfig{SecretKey: "sk_feed"},
	}); err != nil {
		t.Fatalf("save override: %v", err)
	}

	creds, err := svc.CredentialsForForm(ctx, 42)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.SecretKey != "sk_global" {
		t.Fatalf("expected global secret key, got %q", creds.SecretKey)
	}
}

func TestEncryptedConfigIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	svc := newService(t, db, config.CheckoutConfig{SecretKey: "sk_global"}, "feed-secret")

	feed, err := svc.SaveOverride(ctx, feeddomain.SaveOverrideRequest{
		FormID:      42,
		Name:        "donations",
		IsActive:    true,
		UseOverride: true,
		Credentials: config.CheckoutConfig{SecretKey: "sk_feed_very_secret"},
	})
	if err != nil {
		t.Fatalf("save override: %v", err)
	}

	var stored string
	if err := db.Raw(`SELECT encrypted_config FROM feeds WHERE id = ?`, feed.ID).Scan(&stored).Error; err != nil {
		t.Fatalf("read stored config: %v", err)
	}
	if stored == "" {
		t.Fatal("expected encrypted config to be stored")
	}
	if strings.Contains(stored, "sk_feed_very_secret") {
		t.Fatalf("stored config leaks plaintext secret: %s", stored)
	}
}

func TestSaveOverrideRequiresEncryptionKey(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	svc := newService(t, db, config.CheckoutConfig{SecretKey: "sk_global"}, "")

	_, err := svc.SaveOverride(ctx, feeddomain.SaveOverrideRequest{
		FormID:      42,
		UseOverride: true,
		Credentials: config.CheckoutConfig{SecretKey: "sk_feed"},
	})
	if err != feeddomain.ErrEncryptionKeyMissing {
		t.Fatalf("expected ErrEncryptionKeyMissing, got %v", err)
	}
}
