// Package app wires the store, engine, gateway, dispatcher and HTTP surface
// together and owns the server lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/duochat/duochat/internal/auth"
	"github.com/duochat/duochat/internal/config"
	"github.com/duochat/duochat/internal/engine"
	"github.com/duochat/duochat/internal/handlers"
	"github.com/duochat/duochat/internal/logging"
	"github.com/duochat/duochat/internal/middleware"
	"github.com/duochat/duochat/internal/notify"
	"github.com/duochat/duochat/internal/presence"
	"github.com/duochat/duochat/internal/store"
	"github.com/duochat/duochat/internal/store/kvstore"
	"github.com/duochat/duochat/internal/store/sqlstore"
	"github.com/duochat/duochat/internal/telemetry"
	"github.com/duochat/duochat/internal/ws"
)

type App struct {
	cfg      *config.Config
	store    store.Store
	notifier *notify.Dispatcher
	server   *http.Server
}

func New(cfg *config.Config) (*App, error) {
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	tracker := presence.NewTracker()
	eng := engine.New(st, tracker, logging.Component("engine"))

	pushers := []notify.Pusher{
		notify.NewExpoPusher(cfg.Notify.ExpoURL),
		notify.NewWebhookPusher(cfg.Notify.WebhookURL),
	}
	notifier := notify.NewDispatcher(st, pushers, cfg.Notify.Delay, logging.Component("notify"))

	hub := ws.NewHub(eng, tracker, notifier, cfg.Realtime.ClearPresenceOnDisconnect, logging.Component("ws"))

	authHandler := &handlers.AuthHandler{
		Store:              st,
		Signer:             auth.NewSigner(cfg.Auth.SecretKey),
		AllowEmptyPassword: cfg.Auth.AllowEmptyPassword,
		Log:                logging.Component("auth"),
	}
	chatHandler := &handlers.ChatHandler{
		Store:  st,
		Engine: eng,
		Hub:    hub,
		Log:    logging.Component("chat"),
	}
	uploadHandler := &handlers.UploadHandler{Dir: cfg.Upload.Dir, Log: logging.Component("upload")}
	versionHandler := &handlers.VersionHandler{
		LatestVersion: cfg.Version.Latest,
		DownloadURL:   cfg.Version.DownloadURL,
	}

	limiter := middleware.NewRateLimiter(cfg.Auth.RateRPS, cfg.Auth.RateBurst)

	r := mux.NewRouter()
	r.Use(middleware.CORS)
	r.Use(middleware.Logging(logging.Component("http")))

	limited := limiter.Middleware
	r.Handle("/register", limited(http.HandlerFunc(authHandler.Register))).Methods("POST", "OPTIONS")
	r.Handle("/login", limited(http.HandlerFunc(authHandler.Login))).Methods("POST", "OPTIONS")
	r.HandleFunc("/validate", authHandler.Validate).Methods("POST", "OPTIONS")
	r.HandleFunc("/save-token", authHandler.SaveToken).Methods("POST", "OPTIONS")
	r.HandleFunc("/fetch-chat-list", chatHandler.FetchChatList).Methods("POST", "OPTIONS")
	r.HandleFunc("/update-chat-list", chatHandler.UpdateChatList).Methods("POST", "OPTIONS")
	r.HandleFunc("/fetch-messages", chatHandler.FetchMessages).Methods("POST", "OPTIONS")
	r.HandleFunc("/clear-unread", chatHandler.ClearUnread).Methods("POST", "OPTIONS")
	r.HandleFunc("/delete-chat", chatHandler.DeleteChat).Methods("POST", "OPTIONS")
	r.HandleFunc("/upload", uploadHandler.Upload).Methods("POST", "OPTIONS")
	r.HandleFunc("/check-version", versionHandler.CheckVersion).Methods("GET")
	r.Handle("/metrics", telemetry.Handler()).Methods("GET")

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(hub, st, w, req)
	})

	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Upload.Dir))))

	return &App{
		cfg:      cfg,
		store:    st,
		notifier: notifier,
		server:   &http.Server{Addr: cfg.HTTP.Addr, Handler: r},
	}, nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	log := logging.Component("app")
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", a.cfg.HTTP.Addr).Str("store", a.cfg.Store.Backend).Msg("server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	a.notifier.Close()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "pebble":
		return kvstore.New(cfg.Path)
	case "sqlite":
		return sqlstore.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
