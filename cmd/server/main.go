// Command zknotes-server serves the zero-knowledge notes HTTP API and a gRPC health probe.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/zknotes/internal/challenge"
	"github.com/and161185/zknotes/internal/config"
	"github.com/and161185/zknotes/internal/migrate"
	"github.com/and161185/zknotes/internal/repository"
	"github.com/and161185/zknotes/internal/repository/postgres"
	"github.com/and161185/zknotes/internal/repository/sqlite"
	grpcserver "github.com/and161185/zknotes/internal/server/grpc"
	httpserver "github.com/and161185/zknotes/internal/server/http"
	"github.com/and161185/zknotes/internal/service"
	"github.com/and161185/zknotes/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTP.Addr),
		zap.String("health", cfg.Health.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("challenges", cfg.Challenge.Store),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// storage is the opened persistence backend.
type storage struct {
	users repository.UserRepository
	notes repository.NoteRepository
	ping  httpserver.Pinger
	pg    *postgres.DB // nil unless the driver is postgres
	close func()
}

func openStorage(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		n, err := migrate.UpPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		log.Info("migrations applied", zap.Int("count", n))
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &storage{
			users: postgres.NewUserRepo(db),
			notes: postgres.NewNoteRepo(db),
			ping:  db,
			pg:    db,
			close: db.Close,
		}, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		n, err := migrate.Up(ctx, db.SQL, migrate.SQLite)
		if err != nil {
			db.Close()
			return nil, err
		}
		log.Info("migrations applied", zap.Int("count", n), zap.String("path", cfg.Path))
		return &storage{
			users: sqlite.NewUserRepo(db),
			notes: sqlite.NewNoteRepo(db),
			ping:  db,
			close: db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer st.close()

	issuer, err := token.NewIssuer(cfg.TokenSettings())
	if err != nil {
		return err
	}
	verifier, err := token.NewVerifier(cfg.TokenSettings())
	if err != nil {
		return err
	}

	// Bind before any goroutine starts so an address error cannot leave a server running.
	httpLis, healthLis, err := openListeners(cfg.HTTP.Addr, cfg.Health.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var store challenge.Store
	switch cfg.Challenge.Store {
	case config.ChallengePostgres:
		pgStore := challenge.NewPostgres(st.pg.Pool)
		store = pgStore
		g.Go(func() error { purgeLoop(gctx, pgStore, cfg.Challenge.SweepInterval, log); return nil })
	default:
		mem := challenge.NewMemory(cfg.Challenge.SweepInterval)
		defer mem.Close()
		store = mem
	}

	authSvc := service.NewAuthService(st.users, store, issuer,
		service.WithChallengeTTL(cfg.Challenge.TTL),
		service.WithLogger(log.Named("auth")),
	)
	noteSvc := service.NewNoteService(st.notes, log.Named("notes"))

	handler := httpserver.NewHandler(httpserver.Deps{
		Auth:           authSvc,
		Notes:          noteSvc,
		Verifier:       verifier,
		Health:         st.ping,
		Log:            log.Named("http"),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", httpLis.Addr().String()), zap.Bool("tls", cfg.HTTP.TLSCert != ""))
		var err error
		if cfg.HTTP.TLSCert != "" {
			err = srv.ServeTLS(httpLis, cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
		} else {
			err = srv.Serve(httpLis)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	var hs *grpcserver.Health
	if healthLis != nil {
		hs = grpcserver.New(log.Named("health"), grpcserver.Options{
			Pinger:     st.ping,
			Interval:   cfg.Health.Interval,
			Reflection: cfg.Health.Reflection,
		})
		g.Go(func() error {
			log.Info("health listening", zap.String("addr", healthLis.Addr().String()))
			return hs.Serve(healthLis)
		})
		g.Go(func() error { hs.Watch(gctx); return nil })
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if hs != nil {
			hs.Stop(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openListeners binds the HTTP address and, when set, the health address. On failure
// nothing stays bound.
func openListeners(httpAddr, healthAddr string) (net.Listener, net.Listener, error) {
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("http listen: %w", err)
	}
	if healthAddr == "" {
		return httpLis, nil, nil
	}
	healthLis, err := net.Listen("tcp", healthAddr)
	if err != nil {
		_ = httpLis.Close()
		return nil, nil, fmt.Errorf("health listen: %w", err)
	}
	return httpLis, healthLis, nil
}

// purgeLoop deletes expired challenges so abandoned logins do not accumulate rows.
func purgeLoop(ctx context.Context, p *challenge.Postgres, every time.Duration, log *zap.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Purge(ctx)
			if err != nil {
				log.Warn("challenge purge", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("challenge purge", zap.Int64("removed", n))
			}
		}
	}
}
