package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/feed/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cfg   config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	global config.CheckoutConfig
	encKey []byte
}

func New(p Params) domain.Service {
	var key []byte
	if secret := strings.TrimSpace(p.Cfg.FeedConfigSecret); secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("feed.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		global: p.Cfg.Checkout,
		encKey: key,
	}
}

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type credentialsPayload struct {
	SecretKey           string `json:"secret_key"`
	PublicKey           string `json:"public_key"`
	ProcessingChannelID string `json:"processing_channel_id"`
	WebhookSecret       string `json:"webhook_secret"`
	Mode                string `json:"mode"`
}

func (s *Service) CredentialsForForm(ctx context.Context, formID int64) (config.CheckoutConfig, error) {
	feed, err := s.repo.FindActiveByFormID(ctx, s.db, formID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.global, nil
		}
		return config.CheckoutConfig{}, err
	}
	if !feed.UseOverride {
		return s.global, nil
	}

	creds, err := s.decryptCredentials(feed.EncryptedConfig)
	if err != nil {
		s.log.Error("feed credential decryption failed",
			zap.Int64("form_id", formID),
			zap.Error(err),
		)
		return config.CheckoutConfig{}, err
	}
	return creds, nil
}

func (s *Service) SaveOverride(ctx context.Context, req domain.SaveOverrideRequest) (*domain.Feed, error) {
	feed := &domain.Feed{
		ID:          s.genID.Generate(),
		FormID:      req.FormID,
		Name:        strings.TrimSpace(req.Name),
		IsActive:    req.IsActive,
		UseOverride: req.UseOverride,
	}
	if req.UseOverride {
		encrypted, err := s.encryptCredentials(req.Credentials)
		if err != nil {
			return nil, err
		}
		feed.EncryptedConfig = encrypted
	}
	if err := s.repo.Upsert(ctx, s.db, feed); err != nil {
		return nil, err
	}
	return feed, nil
}

func (s *Service) encryptCredentials(creds config.CheckoutConfig) (datatypes.JSON, error) {
	if len(s.encKey) == 0 {
		return nil, domain.ErrEncryptionKeyMissing
	}
	if strings.TrimSpace(creds.SecretKey) == "" {
		return nil, domain.ErrInvalidConfig
	}

	plain, err := json.Marshal(credentialsPayload{
		SecretKey:           creds.SecretKey,
		PublicKey:           creds.PublicKey,
		ProcessingChannelID: creds.ProcessingChannelID,
		WebhookSecret:       creds.WebhookSecret,
		Mode:                config.NormalizeMode(creds.Mode),
	})
	if err != nil {
		return nil, domain.ErrInvalidConfig
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plain, nil)
	out, err := json.Marshal(encryptedPayload{
		Version:    1,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

func (s *Service) decryptCredentials(encrypted datatypes.JSON) (config.CheckoutConfig, error) {
	if len(s.encKey) == 0 {
		return config.CheckoutConfig{}, domain.ErrEncryptionKeyMissing
	}
	if len(encrypted) == 0 {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}

	var payload encryptedPayload
	if err := json.Unmarshal(encrypted, &payload); err != nil {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}
	if payload.Version != 1 {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}

	nonce, err := base64.RawStdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}

	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return config.CheckoutConfig{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return config.CheckoutConfig{}, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}

	var creds credentialsPayload
	if err := json.Unmarshal(plain, &creds); err != nil {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}
	if strings.TrimSpace(creds.SecretKey) == "" {
		return config.CheckoutConfig{}, domain.ErrInvalidConfig
	}

	return config.CheckoutConfig{
		SecretKey:           creds.SecretKey,
		PublicKey:           creds.PublicKey,
		ProcessingChannelID: creds.ProcessingChannelID,
		WebhookSecret:       creds.WebhookSecret,
		Mode:                config.NormalizeMode(creds.Mode),
	}, nil
}
