// Package main is crmctl, the operator CLI for the CRM database: association
// repair, orphan listing, tag inventory and role changes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-crm/backend/config"
	"github.com/aura-crm/backend/pkg/database"
	"github.com/aura-crm/backend/pkg/redis"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "Operate the CRM database",
	Long: `crmctl runs maintenance tasks against the CRM database configured by
the same environment (or .env file) as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall command timeout")

	rootCmd.AddCommand(repairCmd, orphansCmd, tagsCmd, usersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// backend holds the connections a command needs.
type backend struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (b *backend) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	b.pool.Close()
}

// connect opens Postgres and, when withRedis is set, Redis.
func connect(ctx context.Context, withRedis bool) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	b := &backend{cfg: cfg, pool: pool}
	if withRedis {
		b.redis, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	return b, nil
}

// commandContext is cancelled on SIGINT/SIGTERM or after --timeout.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
