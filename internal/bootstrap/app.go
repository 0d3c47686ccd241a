package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"

	"cvcreator-backend/internal/documents"
	"cvcreator-backend/internal/owners"
	"cvcreator-backend/internal/render"
	"cvcreator-backend/internal/services/health"
	"cvcreator-backend/internal/shared/cache"
	"cvcreator-backend/internal/shared/config"
	"cvcreator-backend/internal/shared/server"
	"cvcreator-backend/internal/shared/storage/db"
	"cvcreator-backend/internal/shared/storage/object"
	localstore "cvcreator-backend/internal/shared/storage/object/local"
	remotestore "cvcreator-backend/internal/shared/storage/object/remote"
	s3store "cvcreator-backend/internal/shared/storage/object/s3"
)

const cacheSweepInterval = time.Minute

// App holds shared dependencies.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	HTTPClient *http.Client
	Store      object.Store
	Cache      cache.Cache

	DocumentsRepo    documents.Repo
	OwnersRepo       owners.Repo
	DocumentsService *documents.Service
	OwnersService    *owners.Service
	DocumentsHandler *documents.Handler
	OwnersHandler    *owners.Handler
	Health           *health.Service

	redis *redisv9.Client
}

// Overrides replaces individual collaborators, mainly so tests can run without
// headless Chrome.
type Overrides struct {
	Templates documents.TemplateRenderer
	PDF       documents.PdfRenderer
	Store     object.Store
	Cache     cache.Cache
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	return BuildWith(cfg, Overrides{})
}

// BuildWith is Build with collaborators replaced by any non-nil override.
func BuildWith(cfg config.Config, o Overrides) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	app := &App{Config: cfg, HTTPClient: newHTTPClient(cfg.RemoteStoreTimeout)}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB

	app.Store = o.Store
	if app.Store == nil {
		if app.Store, err = buildStore(ctx, cfg, app.HTTPClient); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	app.Cache = o.Cache
	if app.Cache == nil {
		if app.Cache, app.redis, err = buildCache(ctx, cfg); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	templates := o.Templates
	if templates == nil {
		templates = render.NewTemplates(cfg.TemplateDir)
	}
	pdf := o.PDF
	if pdf == nil {
		pdf = render.NewChromedp(cfg.ChromePath, cfg.RenderTimeout)
	}

	buildServices(app, templates, pdf)
	app.Health = buildHealth(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		OwnerHandler:    app.OwnersHandler,
		Health:          app.Health,
	})
	return app, nil
}

func buildHealth(app *App) *health.Service {
	svc := health.NewService()
	if app.DB != nil {
		svc.Register("database", app.DB.PingContext)
	}
	if app.redis != nil {
		client := app.redis
		svc.Register("cache", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return svc
}

// StartCacheSweeper evicts expired in-memory cache entries until ctx is done.
// Other cache backends expire entries themselves.
func (a *App) StartCacheSweeper(ctx context.Context) {
	mem, ok := a.Cache.(*cache.Memory)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(cacheSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mem.Sweep()
			}
		}
	}()
}

// Close releases the database pool and cache connections.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

// newHTTPClient returns the one pooled client shared by every outbound HTTP store call.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func buildStore(ctx context.Context, cfg config.Config, client *http.Client) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "remote":
		return remotestore.New(client, remotestore.Options{
			BaseURL:        cfg.RemoteStoreURL,
			Bucket:         cfg.RemoteStoreBucket,
			ServiceKey:     cfg.RemoteStoreKey,
			Upsert:         cfg.RemoteStoreUpsert,
			MaxObjectBytes: cfg.RemoteMaxObjectBytes,
		})
	default:
		return localstore.New(cfg.LocalStoreDir)
	}
}

func buildCache(ctx context.Context, cfg config.Config) (cache.Cache, *redisv9.Client, error) {
	switch cfg.CacheBackend {
	case "none":
		return cache.Noop{}, nil, nil
	case "redis":
		client, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: redis unavailable; using in-memory cache: %v", err)
				return cache.NewMemory(), nil, nil
			}
			return nil, nil, err
		}
		return cache.NewRedis(client, ""), client, nil
	default:
		return cache.NewMemory(), nil, nil
	}
}

func buildServices(app *App, templates documents.TemplateRenderer, pdf documents.PdfRenderer) {
	var docRepo documents.Repo
	var ownerRepo owners.Repo

	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		ownerRepo = &owners.PGRepo{DB: app.DB}
	} else {
		memOwners := owners.NewMemoryRepo()
		docRepo = documents.NewMemoryRepo(memOwners)
		ownerRepo = memOwners
	}

	docSvc := &documents.Service{
		Repo:      docRepo,
		Store:     app.Store,
		Templates: templates,
		PDF:       pdf,
		Cache:     app.Cache,
		CachePolicy: cache.Policy{
			Absolute: app.Config.CacheAbsoluteTTL,
			Sliding:  app.Config.CacheSlidingTTL,
		},
		InvalidateOnWrite: app.Config.CacheInvalidateOnWrite,
		SignedURLTTL:      app.Config.SignedURLTTL,
	}
	ownerSvc := owners.NewService(ownerRepo, docSvc)

	app.DocumentsRepo = docRepo
	app.OwnersRepo = ownerRepo
	app.DocumentsService = docSvc
	app.OwnersService = ownerSvc
	app.DocumentsHandler = documents.NewHandler(docSvc, app.Config.DownloadMode == "signed")
	app.OwnersHandler = owners.NewHandler(ownerSvc)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
