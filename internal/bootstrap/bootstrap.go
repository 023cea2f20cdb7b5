// Package bootstrap builds the store and oracle clients selected by the
// configuration. Both binaries go through it so they always agree on where
// sessions, users and channels live.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/mobileauth-chat/internal/config"
	"github.com/tbourn/mobileauth-chat/internal/mongostore"
	"github.com/tbourn/mobileauth-chat/internal/oracle/imgbb"
	"github.com/tbourn/mobileauth-chat/internal/oracle/s3host"
	"github.com/tbourn/mobileauth-chat/internal/oracle/twofactor"
	"github.com/tbourn/mobileauth-chat/internal/repo"
	"github.com/tbourn/mobileauth-chat/internal/services"
)

// OpenStore opens the configured store. The caller owns the result and must
// Close it.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (services.Store, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		db, err := repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.DBPath, err)
		}
		store := repo.NewStore(db)
		if err := repo.AutoMigrate(db); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info().Str("driver", cfg.Driver).Str("path", cfg.DBPath).Msg("store ready")
		return store, nil
	case config.StoreMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoAuthDB, cfg.MongoChatDB)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		store.OpTimeout = cfg.MongoOpTimeout
		log.Info().Str("driver", cfg.Driver).Str("auth_db", cfg.MongoAuthDB).Str("chat_db", cfg.MongoChatDB).Msg("store ready")
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// NewOTPProvider returns the 2factor client.
func NewOTPProvider(cfg config.OTPConfig) services.OTPProvider {
	if cfg.APIKey == "" {
		log.Warn().Msg("TWO_FACTOR_API_KEY is empty; OTP sends will be rejected upstream")
	}
	return twofactor.New(cfg.BaseURL, cfg.APIKey, cfg.Timeout, nil)
}

// NewImageHost returns the configured image host.
func NewImageHost(ctx context.Context, cfg config.ImageConfig) (services.ImageHost, error) {
	switch cfg.Host {
	case config.ImageHostImgBB:
		return imgbb.New(cfg.ImgBBEndpoint, cfg.ImgBBAPIKey, nil), nil
	case config.ImageHostS3:
		h, err := s3host.New(ctx, cfg.S3Region, cfg.S3Bucket, cfg.URLPrefix)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, fmt.Errorf("unknown image host %q", cfg.Host)
}
