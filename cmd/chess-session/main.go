package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/alissanguyen/chess-ai/internal/config"
	"github.com/alissanguyen/chess-ai/internal/domain"
	"github.com/alissanguyen/chess-ai/internal/httpapi"
	"github.com/alissanguyen/chess-ai/internal/identity"
	"github.com/alissanguyen/chess-ai/internal/obslog"
	"github.com/alissanguyen/chess-ai/internal/outcome"
	"github.com/alissanguyen/chess-ai/internal/profile"
	"github.com/alissanguyen/chess-ai/internal/rules"
	"github.com/alissanguyen/chess-ai/internal/session"
	"github.com/alissanguyen/chess-ai/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	rdb, err := store.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	st := store.NewStore(rdb, cfg.StatsTTL(), cfg.SnapshotTTL())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deviceID, err := st.DeviceID(ctx)
	cancel()
	if err != nil {
		log.Fatalf("device id error: %v", err)
	}

	var remote profile.Repository
	if cfg.DatabaseURL != "" {
		remote, err = profile.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("profile repo init error: %v", err)
		}
	} else {
		logger.Info("no database configured, running guest-only")
	}

	machine := session.NewMachine(rules.NewGameEngine(), session.Config{
		BotThinkTime:      cfg.BotThinkTime(),
		ReplayStep:        cfg.ReplayStep(),
		InitialHumanColor: initialColor(st, deviceID, logger),
	}, logger)

	idh := identity.NewHandler(deviceID, st, remote, machine, cfg.SignupPromptPlies, logger)
	recorder := outcome.NewRecorder(st, remote, idh.Snapshot, logger)
	syncer := session.NewSyncer(st, idh.StorageKey, cfg.SnapshotDebounce(), logger)
	hub := httpapi.NewHub(logger)

	machine.AddSink(recorder)
	machine.AddSink(syncer)
	machine.AddSink(idh)
	machine.AddSink(hub)
	machine.AddSink(&colorPersister{store: st, keyFn: idh.StorageKey, logger: logger})

	resumeOrStart(machine, st, deviceID, logger)

	api := httpapi.NewServer(httpapi.Options{
		Machine:               machine,
		Store:                 st,
		Identity:              idh,
		Remote:                remote,
		LeaderboardLimit:      cfg.LeaderboardLimit,
		LeaderboardMinMatches: cfg.LeaderboardMinMatches,
		Logger:                logger,
	})

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", hub)
	wsServer := &http.Server{Addr: cfg.WSListenAddr, Handler: wsMux}

	errCh := make(chan error, 2)
	go func() { errCh <- api.ListenAndServe(cfg.ListenAddr) }()
	go func() {
		logger.Info("websocket stream listening", zap.String("addr", cfg.WSListenAddr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = api.Shutdown()
	_ = wsServer.Shutdown(shutdownCtx)
	syncer.Close()
	_ = rdb.Close()
	if remote != nil {
		_ = remote.Close()
	}
}

// initialColor restores the side the player was last assigned, so the
// alternation survives restarts.
func initialColor(st *store.Store, deviceID string, logger *zap.Logger) domain.Color {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	prefs, err := st.LoadPrefs(ctx, deviceID)
	if err != nil {
		logger.Warn("prefs load failed", zap.Error(err))
		return domain.White
	}
	if prefs == nil || (prefs.AssignedColor != domain.White && prefs.AssignedColor != domain.Black) {
		return domain.White
	}
	return prefs.AssignedColor
}

// resumeOrStart replays a saved snapshot when one survives, otherwise
// starts a fresh session.
func resumeOrStart(machine *session.Machine, st *store.Store, deviceID string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := st.LoadSnapshot(ctx, deviceID)
	if err != nil {
		logger.Warn("snapshot load failed", zap.Error(err))
	}
	if snap != nil && len(snap.MovesUCI) > 0 {
		if err := machine.StartReplay(snap); err == nil {
			logger.Info("session resumed from snapshot", zap.Int("moves", len(snap.MovesUCI)))
			return
		}
	}
	machine.Start()
}

// colorPersister records the player's assigned color whenever it changes,
// keeping the per-game alternation durable. Sinks are delivered from
// request, timer, and replay goroutines, so the change detection is locked.
type colorPersister struct {
	mu     sync.Mutex
	store  *store.Store
	keyFn  func() string
	last   domain.Color
	logger *zap.Logger
}

func (c *colorPersister) SessionChanged(view session.View) {
	c.mu.Lock()
	if view.HumanColor == c.last {
		c.mu.Unlock()
		return
	}
	c.last = view.HumanColor
	c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	key := c.keyFn()
	prefs, err := c.store.LoadPrefs(ctx, key)
	if err != nil {
		c.logger.Warn("prefs load failed", zap.Error(err))
		return
	}
	if prefs == nil {
		prefs = &domain.Prefs{}
	}
	prefs.AssignedColor = view.HumanColor
	if err := c.store.SavePrefs(ctx, key, prefs); err != nil {
		c.logger.Warn("assigned color save failed", zap.Error(err))
	}
}

func (c *colorPersister) SessionEnded(session.View, domain.Result) {}
