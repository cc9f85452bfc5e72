package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbrodhuber/Submit-and-Review/internal/metrics"
	"github.com/mbrodhuber/Submit-and-Review/pkg/storage"
	"github.com/mbrodhuber/Submit-and-Review/pkg/store"
)

// Config holds runtime configuration for the core application. Store, Sessions
// and Objects are built from the remaining fields when not supplied.
type Config struct {
	DatabaseURL string
	Store       store.Store

	RedisAddr           string
	RedisPassword       string
	SessionTTL          time.Duration
	JWTPrivateKeyPath   string
	JWTKeyID            string
	JWTVerifyPublicKeys map[string]string
	JWTIssuer           string
	JWTAudience         string
	JWTLeeway           time.Duration
	Sessions            store.SessionStore

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	StorageDir     string
	Objects        storage.ObjectStore
	PresignTTL     time.Duration

	Metrics *metrics.Metrics
	Now     func() time.Time
}

// App is the core application service: identity, submissions, review and role
// management on top of the record store, session store and object storage.
type App struct {
	store      store.Store
	sessions   store.SessionStore
	objects    storage.ObjectStore
	metrics    *metrics.Metrics
	presignTTL time.Duration
	now        func() time.Time
	closers    []func() error
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	a := &App{
		metrics:    cfg.Metrics,
		presignTTL: cfg.PresignTTL,
		now:        cfg.Now,
	}
	if a.presignTTL <= 0 {
		a.presignTTL = 15 * time.Minute
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.store = cfg.Store
	if a.store == nil {
		dsn := strings.TrimSpace(cfg.DatabaseURL)
		switch {
		case dsn == "":
			return nil, fmt.Errorf("database URL required")
		case dsn == "memory://":
			a.store = store.NewMemoryStore()
		default:
			gs, err := store.NewGormStore(dsn)
			if err != nil {
				return nil, fmt.Errorf("init database store: %w", err)
			}
			a.store = gs
		}
	}

	a.sessions = cfg.Sessions
	if a.sessions == nil {
		if strings.TrimSpace(cfg.JWTPrivateKeyPath) == "" {
			return nil, fmt.Errorf("jwtPrivateKeyPath is required")
		}
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			rr := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
			a.closers = append(a.closers, rr.Close)
			revoker = rr
		}
		ttl := cfg.SessionTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		sessions, err := store.NewJWTRS256SessionStoreFromPEM(
			cfg.JWTPrivateKeyPath,
			cfg.JWTKeyID,
			cfg.JWTVerifyPublicKeys,
			ttl,
			revoker,
			store.JWTOptions{
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				Leeway:   cfg.JWTLeeway,
			},
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init rs256 jwt session store: %w", err)
		}
		a.sessions = sessions
	}

	a.objects = cfg.Objects
	if a.objects == nil {
		var err error
		switch {
		case strings.TrimSpace(cfg.MinioEndpoint) != "":
			bucket := cfg.MinioBucket
			if bucket == "" {
				bucket = storage.DefaultBucket
			}
			a.objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, bucket, cfg.MinioUseSSL)
		case strings.TrimSpace(cfg.StorageDir) != "":
			a.objects, err = storage.NewDiskStore(cfg.StorageDir, "/files")
		default:
			err = errors.New("minio endpoint or storage dir required")
		}
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init object storage: %w", err)
		}
	}
	return a, nil
}

// LocalFiles reports the directory behind disk-backed object storage, so the
// server can serve download links itself.
func (a *App) LocalFiles() (string, bool) {
	if ds, ok := a.objects.(*storage.DiskStore); ok {
		return ds.Root(), true
	}
	return "", false
}

// SessionTTL reports the lifetime of issued session tokens, or 0 when the
// session store does not expose it.
func (a *App) SessionTTL() time.Duration {
	if t, ok := a.sessions.(interface{ TTL() time.Duration }); ok {
		return t.TTL()
	}
	return 0
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
