// Command entity-builder-migrate installs the helper SQL functions the
// entity builder relies on: safe_create_fn and the execute_if_exists_n<N>
// probe family. Run it once per database before the first fetch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/smoogly/entity-builder/internal/logging"
	"github.com/smoogly/entity-builder/migrations"
)

func main() {
	if err := run(); err != nil {
		slog.Error("migration error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.String("dsn", "", "PostgreSQL connection string (postgres://...)")
	pflag.Bool("dry-run", false, "Print the helper statements without executing them")
	pflag.String("log-level", "info", "Log level: debug, info, warn, error")
	pflag.String("log-format", "text", "Log format: text, json")
	pflag.Duration("timeout", 5*time.Minute, "Overall migration timeout")
	pflag.Parse()

	v := viper.New()
	v.SetEnvPrefix("ENTITY_BUILDER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Level:  v.GetString("log-level"),
		Format: v.GetString("log-format"),
	})
	slog.SetDefault(logger.Logger)

	if v.GetBool("dry-run") {
		statements, err := migrations.Statements()
		if err != nil {
			return err
		}
		for _, stmt := range statements {
			fmt.Println(stmt + ";")
		}
		return nil
	}

	dsn := v.GetString("dsn")
	if dsn == "" {
		return fmt.Errorf("a connection string is required: pass --dsn or set ENTITY_BUILDER_DSN")
	}

	db, err := otelsql.Open("pgx", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("timeout"))
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	start := time.Now()
	if err := migrations.Apply(ctx, db); err != nil {
		return err
	}
	logger.Info("helper functions installed",
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
