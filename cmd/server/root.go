package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/andy6609/linechat/internal/archive"
	"github.com/andy6609/linechat/internal/chat"
	"github.com/andy6609/linechat/internal/config"
	"github.com/andy6609/linechat/internal/transcript"
)

type rootFlags struct {
	configPath       string
	profile          string
	addr             string
	password         string
	passwordHash     string
	logFile          string
	metricsAddr      string
	redisAddr        string
	handshakeTimeout time.Duration
	historyMax       int
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootFlags{})
}

func buildRootCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linechat [password]",
		Short: "Line-based TCP chat relay",
		Long: `linechat relays newline-terminated chat messages between every
connected TCP client. Clients optionally authenticate with a shared
password, choose a nickname and receive the recent history on join.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath, f.profile)
			if err != nil {
				return err
			}
			cfg.ApplyEnv()
			f.apply(cmd, cfg)
			if len(args) == 1 {
				cfg.Password = strings.TrimSpace(args[0])
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cfg.NewLogger(os.Stdout))
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	fl.StringVar(&f.profile, "profile", config.ProfileDev, "defaults profile: dev or release")
	fl.StringVar(&f.addr, "addr", "", "chat listen address")
	fl.StringVar(&f.password, "password", "", "shared password required to join")
	fl.StringVar(&f.passwordHash, "password-hash", "", "bcrypt hash of the shared password")
	fl.StringVar(&f.logFile, "log-file", "", "transcript log used to persist and replay history")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "metrics listen address (empty disables)")
	fl.StringVar(&f.redisAddr, "redis-addr", "", "Redis address for the history archive")
	fl.DurationVar(&f.handshakeTimeout, "handshake-timeout", 0, "limit for password and nickname input (0 waits forever)")
	fl.IntVar(&f.historyMax, "history-max", 0, "number of messages retained for replay")

	return cmd
}

// apply copies explicitly set flags over cfg.
func (f *rootFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.ListenAddr = f.addr
	}
	if changed("password") {
		cfg.Password = strings.TrimSpace(f.password)
	}
	if changed("password-hash") {
		cfg.PasswordHash = f.passwordHash
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("redis-addr") {
		cfg.Redis.Addr = f.redisAddr
	}
	if changed("handshake-timeout") {
		cfg.HandshakeTimeout = f.handshakeTimeout
	}
	if changed("history-max") {
		cfg.History.MaxRecords = f.historyMax
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var arch *archive.Redis
	if cfg.Redis.Addr != "" {
		arch = archive.NewRedis(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Key, cfg.History.MaxRecords)
		defer arch.Close()
		pingArchive(ctx, arch, cfg.Redis.Addr, logger)
	}

	history := loadHistory(ctx, cfg, arch, logger)
	history.Trim(cfg.History.MaxRecords)

	hub := chat.NewHub(cfg.Hub.SubscriberBuffer)
	defer hub.Close()

	// Recorders subscribe before the listener opens so the first broadcast
	// reaches every sink.
	type recorder struct {
		name string
		sink chat.Sink
		sub  *chat.Subscription
	}
	var recorders []recorder
	if cfg.LogFile != "" {
		tf, err := transcript.Open(cfg.LogFile)
		if err != nil {
			logger.Warn("transcript disabled", "path", cfg.LogFile, "error", err)
		} else {
			defer tf.Close()
			recorders = append(recorders, recorder{"transcript", tf, hub.SubscribeBuffered(cfg.History.MaxRecords)})
		}
	}
	if arch != nil {
		recorders = append(recorders, recorder{"redis", arch, hub.SubscribeBuffered(cfg.History.MaxRecords)})
	}

	room := &chat.Room{
		Registry:         chat.NewRegistry(),
		History:          history,
		Hub:              hub,
		Secret:           secretFrom(cfg),
		HandshakeTimeout: cfg.HandshakeTimeout,
		Logger:           logger,
	}

	srv := chat.NewServer(cfg.ListenAddr, room, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		chat.RunRetention(ctx, history, cfg.History.MaxRecords, cfg.History.RetentionInterval, logger)
		return nil
	})

	for _, r := range recorders {
		r := r
		g.Go(func() error {
			chat.RunRecorder(ctx, r.sub, r.sink, logger.With("sink", r.name))
			return nil
		})
	}

	if cfg.MetricsAddr != "" {
		ms := newMetricsServer(cfg.MetricsAddr)
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		hub.Close()
		return nil
	})

	return g.Wait()
}

// pingArchive reports an unreachable archive at startup. The server still
// starts; recording and loading fail softly until Redis comes back.
func pingArchive(ctx context.Context, arch *archive.Redis, addr string, logger *slog.Logger) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := arch.Ping(pingCtx); err != nil {
		logger.Warn("redis archive unreachable", "addr", addr, "error", err)
		return false
	}
	return true
}

// loadHistory prefers a non-empty Redis archive, then the transcript log,
// then an empty history.
func loadHistory(ctx context.Context, cfg *config.Config, arch *archive.Redis, logger *slog.Logger) *chat.History {
	if arch != nil {
		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		history, err := arch.LoadHistory(loadCtx, logger)
		switch {
		case err != nil:
			logger.Warn("could not load chat history from redis", "addr", cfg.Redis.Addr, "error", err)
		case history.Len() > 0:
			return history
		default:
			logger.Info("redis archive is empty, falling back to transcript log", "addr", cfg.Redis.Addr)
		}
	}
	if cfg.LogFile != "" {
		return chat.LoadHistoryFromLog(cfg.LogFile, cfg.History.MaxRecords, logger)
	}
	return chat.NewHistory()
}

func secretFrom(cfg *config.Config) chat.Secret {
	switch {
	case cfg.PasswordHash != "":
		return chat.BcryptSecret(cfg.PasswordHash)
	case cfg.Password != "":
		return chat.PlainSecret(cfg.Password)
	}
	return nil
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
