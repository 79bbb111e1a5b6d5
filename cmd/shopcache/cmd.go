package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/guardcache"
	asynchook "github.com/unkn0wn-root/guardcache/hooks/async"
	"github.com/unkn0wn-root/guardcache/kvstore"
	"github.com/unkn0wn-root/guardcache/kvstore/memory"
	"github.com/unkn0wn-root/guardcache/kvstore/near"
	rstore "github.com/unkn0wn-root/guardcache/kvstore/redis"
	gzap "github.com/unkn0wn-root/guardcache/log/zap"
	"github.com/unkn0wn-root/guardcache/rebuild"
	"github.com/unkn0wn-root/guardcache/session"
	"github.com/unkn0wn-root/guardcache/sloghooks"
)

type serveFlags struct {
	listen     string
	redisAddr  string
	strategy   string
	nearWindow time.Duration
	sessionTTL time.Duration
	shopTTL    time.Duration
	workers    int
	debug      bool
	hookLog    bool
	hookSample uint64
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "shopcache",
		Short:        "Shop catalog served through guardcache",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.listen, "listen", ":8081", "HTTP listen address")
	fl.StringVar(&f.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "redis address; empty runs on an in-process store")
	fl.StringVar(&f.strategy, "strategy", string(guardcache.StrategyLogical), "read strategy: passthrough, mutex or logical")
	fl.DurationVar(&f.nearWindow, "near-window", 0, "serve hot reads from a local cache for this long; 0 disables")
	fl.DurationVar(&f.sessionTTL, "session-ttl", session.DefaultTTL, "sliding session lifetime")
	fl.DurationVar(&f.shopTTL, "shop-ttl", 30*time.Minute, "shop cache lifetime")
	fl.IntVar(&f.workers, "rebuild-workers", rebuild.DefaultWorkers, "rebuild executor workers")
	fl.BoolVar(&f.debug, "debug", false, "debug logging")
	fl.BoolVar(&f.hookLog, "hook-log", false, "log cache events as JSON to stderr")
	fl.Uint64Var(&f.hookSample, "hook-sample", 1, "log every Nth negative hit, self-heal and contention event")
	return cmd
}

// newHooks writes cache events to w through a bounded async queue. The
// returned func flushes queued events.
func newHooks(f serveFlags, w io.Writer) (guardcache.Hooks, func()) {
	if !f.hookLog {
		return guardcache.NopHooks{}, func() {}
	}
	level := slog.LevelWarn
	if f.debug {
		level = slog.LevelDebug
	}
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	h := asynchook.New(sloghooks.New(l, sloghooks.Options{
		NegativeHitEvery: f.hookSample,
		SelfHealEvery:    f.hookSample,
		ContendedEvery:   f.hookSample,
	}), 1, 0)
	return h, h.Close
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(f serveFlags) (kvstore.Store, func(), error) {
	var (
		store   kvstore.Store
		cleanup = func() {}
	)
	if f.redisAddr == "" {
		m, err := memory.New(memory.Config{})
		if err != nil {
			return nil, nil, err
		}
		store = m
	} else {
		rdb := redis.NewClient(&redis.Options{Addr: f.redisAddr})
		s, err := rstore.New(rstore.Config{Client: rdb})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		store = s
		cleanup = func() { _ = rdb.Close() }
	}
	if f.nearWindow > 0 {
		n, err := near.New(near.Config{Inner: store, LifeWindow: f.nearWindow})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		store = n
	}
	return store, cleanup, nil
}

func serve(ctx context.Context, f serveFlags) error {
	kind, err := guardcache.ParseStrategyKind(f.strategy)
	if err != nil {
		return err
	}
	zl, err := newLogger(f.debug)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	store, closeStore, err := openStore(f)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	hooks, closeHooks := newHooks(f, os.Stderr)
	defer closeHooks()

	exec := rebuild.NewExecutor(f.workers, rebuild.DefaultQueue)
	shops, err := guardcache.New[Shop](guardcache.Options[Shop]{
		Store:    store,
		Codec:    shopCodec(),
		Logger:   gzap.New(zl),
		Hooks:    hooks,
		Strategy: kind,
		Executor: exec,
	})
	if err != nil {
		exec.Close()
		return err
	}
	// queued rebuilds still write to the store
	defer func() {
		exec.Close()
		_ = shops.Close(context.Background())
	}()

	sessions, err := session.NewStore(session.Config{Store: store, TTL: f.sessionTTL})
	if err != nil {
		return err
	}

	srv := newServer(shops, kind, sessions, newCatalog(), f.shopTTL, zl)
	if kind == guardcache.StrategyLogical {
		if err := srv.warmAll(ctx); err != nil {
			return fmt.Errorf("warm catalog: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Addr:              f.listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	zl.Info("listening", zap.String("addr", f.listen), zap.String("strategy", string(kind)))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
