package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/internal/config"
	pgInfra "github.com/fastygo/helpdesk/internal/infrastructure/postgres"
	"github.com/fastygo/helpdesk/pkg/logger"
	"github.com/fastygo/helpdesk/repository/memory"
	"github.com/fastygo/helpdesk/repository/postgres"
	"github.com/fastygo/helpdesk/usecase/tenant"
)

func main() {
	var (
		business          = pflag.StringP("business", "b", "Demo Business", "business name")
		departments       = pflag.StringSliceP("departments", "d", tenant.DefaultDepartments, "department names (the fallback department is always added)")
		domain            = pflag.String("domain", "demo.com", "email domain for the seeded users")
		withConversations = pflag.Bool("with-conversations", true, "create one sample conversation per department")
		storage           = pflag.String("storage", "", "storage backend override (postgres or memory)")
		timeout           = pflag.Duration("timeout", 30*time.Second, "overall seeding timeout")
	)
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *storage != "" {
		cfg.Storage = *storage
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName + "-seed",
		Output:   os.Stderr,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	uc, closeFn, err := newTenantUseCase(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("storage unavailable", zap.Error(err))
	}
	defer closeFn()

	result, err := uc.Seed(ctx, tenant.SeedRequest{
		BusinessName:       *business,
		Departments:        *departments,
		EmailDomain:        *domain,
		FallbackDepartment: cfg.Classifier.FallbackDepartment,
		WithConversations:  *withConversations,
	})
	if err != nil {
		zapLogger.Fatal("seed failed", zap.Error(err))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

func newTenantUseCase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (*tenant.UseCase, func(), error) {
	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		return tenant.New(store.Businesses(), store.Departments(), store.Users(), store.Conversations(), store.Messages(), zapLogger), func() {}, nil
	case config.StoragePostgres:
		if cfg.Migrations.Enabled {
			if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
				return nil, nil, err
			}
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, zapLogger)
		if err != nil {
			return nil, nil, err
		}
		uc := tenant.New(
			postgres.NewBusinessRepository(pool),
			postgres.NewDepartmentRepository(pool),
			postgres.NewUserRepository(pool),
			postgres.NewConversationRepository(pool),
			postgres.NewMessageRepository(pool),
			zapLogger,
		)
		return uc, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
