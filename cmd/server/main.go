package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/events"
	"github.com/p-n-ai/pai-player/internal/lms"
	"github.com/p-n-ai/pai-player/internal/navigation"
	"github.com/p-n-ai/pai-player/internal/platform/cache"
	"github.com/p-n-ai/pai-player/internal/platform/config"
	"github.com/p-n-ai/pai-player/internal/platform/database"
	"github.com/p-n-ai/pai-player/internal/player"
	"github.com/p-n-ai/pai-player/internal/realtime"
)

// readinessCheck reports whether a dependency is usable.
type readinessCheck struct {
	name  string
	check func(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var checks []readinessCheck

	var lmsClient *lms.Client
	if cfg.LMS.BaseURL != "" {
		lmsClient = lms.NewClient(cfg.LMS.BaseURL,
			lms.WithToken(cfg.LMS.Token),
			lms.WithTimeout(cfg.LMSTimeout()),
		)
		checks = append(checks, readinessCheck{"lms", lmsClient.HealthCheck})
	}

	var loader course.Loader
	if cfg.UsesLMS() {
		loader = lmsClient
	} else {
		fl, err := course.NewFileLoader(cfg.Content.CoursePath)
		if err != nil {
			slog.Error("failed to load courses", "path", cfg.Content.CoursePath, "error", err)
			os.Exit(1)
		}
		loader = fl
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Warn("course cache unavailable, continuing without it", "error", err)
		} else {
			defer c.Close()
			loader = course.NewCachedLoader(loader, c, cfg.CacheTTL())
			checks = append(checks, readinessCheck{"cache", c.HealthCheck})
		}
	}

	var eventLog events.Logger = events.NopLogger{}
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pl := events.NewPostgresLogger(db.Pool)
		if err := pl.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare event schema", "error", err)
			os.Exit(1)
		}
		eventLog = pl
		checks = append(checks, readinessCheck{"database", db.HealthCheck})
	}

	hub := realtime.NewHub(cfg.Player.AllowedOrigins...)

	pcfg := player.Config{
		Courses:      loader,
		Navigator:    hub,
		Events:       eventLog,
		UserID:       cfg.Player.UserID,
		DefaultScope: navigation.Scope(cfg.Player.DefaultScope),
	}
	if lmsClient != nil {
		pcfg.Lectures = lmsClient
		pcfg.Quizzes = lmsClient
	}
	p := player.New(pcfg)
	slog.Info("player session started", "session_id", p.SessionID(), "user_id", cfg.Player.UserID)

	mux := newMux(p, hub, checks...)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	// Hijacked websocket connections are not closed by Shutdown.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from config. Unknown levels fall back to info.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newMux creates the HTTP router with health checks, the player API and the
// websocket endpoint.
func newMux(p *player.Player, ws http.Handler, checks ...readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	if p != nil {
		player.Register(mux, p)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unavailable","check":%q}`, c.name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
