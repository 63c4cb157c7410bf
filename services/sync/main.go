// Conversation sync service: ordered message logs, read-state reconciliation,
// summary index and presence-gated push over HTTP + WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatsync/internal/blob"
	"github.com/chatsync/internal/chat"
	"github.com/chatsync/internal/chatlog"
	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/handler"
	"github.com/chatsync/internal/identity"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/media"
	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/notify"
	"github.com/chatsync/internal/presence"
	"github.com/chatsync/internal/push"
	"github.com/chatsync/internal/readstate"
	"github.com/chatsync/internal/startup"
	"github.com/chatsync/internal/store"
	memorystore "github.com/chatsync/internal/store/memory"
	pebblestore "github.com/chatsync/internal/store/pebble"
	postgresstore "github.com/chatsync/internal/store/postgres"
	"github.com/chatsync/internal/summary"
	"github.com/chatsync/internal/task"
	"github.com/chatsync/internal/ws"
	"github.com/chatsync/migrations"
)

func main() {
	logger.SetPrefix("sync")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory push registry")
	flag.Parse()

	logger.Info("starting sync service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev && cfg.StoreBackend == config.StorePostgres {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	st, cleanup := openStore(cfg)
	defer cleanup()
	if *migrate && !*dev {
		return
	}

	// Push delivery: Redis-backed registry in normal operation, in-memory
	// in -dev. Missing VAPID keys disable delivery, not the service.
	var registry push.Registry
	if *dev || cfg.StoreBackend == config.StoreMemory {
		registry = push.NewMemoryRegistry()
	} else {
		registry = startup.ConnectPushRegistryWithRetry(cfg.Redis.URL, 60*time.Second, "")
	}
	defer registry.Close()

	keys := &push.VAPIDKeys{PublicKey: cfg.Push.VAPIDPublicKey, PrivateKey: cfg.Push.VAPIDPrivateKey}
	if keys.PublicKey == "" || keys.PrivateKey == "" {
		loaded, err := push.EnsureVAPIDKeys(cfg.Push.KeysFile)
		if err != nil {
			logger.Errorf("VAPID keys: %v (push delivery disabled)", err)
			keys = nil
		} else {
			keys = loaded
		}
	}
	sender := push.NewSender(registry, keys)
	if !sender.Enabled() {
		logger.Info("VAPID keys not configured: subscriptions are stored, delivery is off")
	}

	presenceReg := presence.NewRegistry()
	tasks := task.NewRunner(10 * time.Second)
	defer tasks.Shutdown()

	log := chatlog.New(st)
	idx := summary.New(st)
	reconciler := readstate.New(st)
	dispatcher := notify.NewDispatcher(presenceReg, sender)
	svc := chat.NewService(st, log, idx, reconciler, dispatcher, tasks)
	blobs := blob.NewDiskStore(cfg.UploadDir, cfg.MaxUploadSize)
	coordinator := media.NewCoordinator(st, log, idx, blobs)
	users := identity.ContextProvider{}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(svc, log, idx, presenceReg, cfg.MaxWSConnections)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	msgH := handler.NewMessageHandler(svc, log, idx, users)
	groupH := handler.NewGroupHandler(svc, log, reconciler, users)
	mediaH := handler.NewMediaHandler(coordinator, blobs, users, cfg.MaxUploadSize)
	presenceH := handler.NewPresenceHandler(presenceReg, users)
	pushH := handler.NewPushHandler(registry, sender, users)
	wsH := handler.NewWSHandler(hub, users, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Do not compress WebSocket responses: the wrapped ResponseWriter loses
	// http.Hijacker and the upgrade fails with 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.UserAuth)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/push/vapid-public", pushH.VAPIDPublic)
	r.Get("/api/media/*", mediaH.Serve)

	r.Group(func(r chi.Router) {
		r.Post("/api/messages", msgH.Send)
		r.Get("/api/conversations/{peerId}/messages", msgH.History)
		r.Post("/api/conversations/{peerId}/read", msgH.MarkRead)
		r.Get("/api/conversations/{peerId}/unread", msgH.UnreadCount)
		r.Post("/api/conversations/{peerId}/images", mediaH.SendImage)
		r.Get("/api/summaries", msgH.Summaries)

		r.Post("/api/groups", groupH.Create)
		r.Get("/api/groups/{groupId}", groupH.Get)
		r.Post("/api/groups/{groupId}/messages", groupH.Send)
		r.Get("/api/groups/{groupId}/messages", groupH.History)
		r.Post("/api/groups/{groupId}/read", groupH.MarkRead)
		r.Get("/api/groups/{groupId}/unread", groupH.UnreadCount)
		r.Post("/api/groups/{groupId}/images", mediaH.SendGroupImage)

		r.Post("/api/presence/enter", presenceH.Enter)
		r.Post("/api/presence/exit", presenceH.Exit)
		r.Post("/api/presence/foreground", presenceH.Foreground)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)

		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// openStore builds the configured store backend. The returned cleanup closes
// the store and any underlying pool.
func openStore(cfg *config.Config) (store.Store, func()) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Info("using in-memory store")
		st := memorystore.New()
		return st, func() { st.Close() }
	case config.StorePebble:
		logger.Infof("using pebble store at %s", cfg.PebblePath)
		st, err := pebblestore.Open(cfg.PebblePath)
		if err != nil {
			logger.Errorf("open pebble store: %v", err)
			os.Exit(1)
		}
		return st, func() { st.Close() }
	default:
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			logger.Errorf("parse db config: %v", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 4

		pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
		runMigrations(pool)
		logger.Info("database connected, migrations applied")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := postgresstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			logger.Errorf("open postgres store: %v", err)
			os.Exit(1)
		}
		return st, func() {
			st.Close()
			pool.Close()
		}
	}
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, f := range migrations.Files {
		data, err := migrations.FS.ReadFile(f)
		if err != nil {
			logger.Errorf("read migration %s: %v", f, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", f, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chatsync"
		password = "chatsync_secret"
		database = "chatsync"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
