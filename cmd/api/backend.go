package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/tanmvo/relevance-ai-chat/internal/app"
	"github.com/tanmvo/relevance-ai-chat/internal/config"
	"github.com/tanmvo/relevance-ai-chat/internal/email"
	"github.com/tanmvo/relevance-ai-chat/internal/events"
	"github.com/tanmvo/relevance-ai-chat/internal/export"
	"github.com/tanmvo/relevance-ai-chat/internal/history"
	"github.com/tanmvo/relevance-ai-chat/internal/search"
	"github.com/tanmvo/relevance-ai-chat/internal/session"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
)

// backend is everything a command needs to run the service, plus the cleanup
// for it.
type backend struct {
	db      *sql.DB
	store   *store.PostgresStore
	search  *search.Service
	service *app.Service
	closers []func()
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

// openBackend connects to Postgres, applies migrations and wires the optional
// Redis, Meilisearch, MinIO and SMTP integrations that are configured.
func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b := &backend{db: db, closers: []func(){func() { _ = db.Close() }}}

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		b.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	b.store = store.NewPostgresStore(db)

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		log.Printf("Using Meilisearch at %s for search", cfg.MeiliURL)
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		b.closers = append(b.closers, meili.Close)
	}
	b.search = search.NewService(meili, search.NewPgFTS(db))

	deps := app.Dependencies{
		History: history.New(cfg.HistoryDir),
		Search:  b.search,
		Mail: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for sessions and live updates")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		b.closers = append(b.closers, func() { _ = redisStore.Close() })
		deps.Sessions = redisStore
		deps.Events = events.NewRedisBus(redisStore.Client())
	} else {
		log.Printf("Using PostgreSQL for sessions; live updates stay in-process")
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		objects, err := export.NewObjectStore(ctx, export.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			URLTTL:    cfg.ExportURLTTL,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("object storage setup failed: %w", err)
		}
		deps.Export = export.NewService(objects)
	}

	b.service = app.New(cfg, b.store, deps)
	return b, nil
}

// Close runs cleanups in reverse order of setup.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}
