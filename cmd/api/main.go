package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/middleware"
	repo "storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	// .env は任意（本番は環境変数で渡す）
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "storefront",
		Usage: "storefront order API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply embedded migrations",
				Action: migrateUp,
			},
			{
				Name:  "reconcile-carts",
				Usage: "retry cart clearing for orders whose cart was not cleared",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100},
				},
				Action: reconcileCarts,
			},
			{
				Name:  "token",
				Usage: "issue a JWT for a user (dev)",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user-id", Required: true},
					&cli.StringFlag{Name: "role", Value: string(model.RoleUser)},
					&cli.IntFlag{Name: "tv", Value: 0},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: issueToken,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("storefront failed")
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.IsProd() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// 依存をまとめて組み立てる
type app struct {
	cfg    config.Config
	log    *logrus.Logger
	db     *gorm.DB
	redis  *redis.Client
	orders *infraRepo.OrderGormRepository
	tx     repo.TransactionManager
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	log := newLogger(cfg)

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}

	rdb, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	orders := infraRepo.NewOrderGormRepository(gormDB)

	//redis発番のときは既存の最大番号より下から始めない
	var sequences repo.SequenceRepository
	if cfg.SequenceBackend == config.SequenceBackendRedis {
		seq := infraRepo.NewSequenceRedisRepository(rdb)
		maxNumber, err := orders.MaxOrderNumber(ctx)
		if err != nil {
			return nil, err
		}
		if err := seq.SeedAtLeast(ctx, usecase.OrderSequenceName, maxNumber); err != nil {
			return nil, err
		}
		sequences = seq
	}

	return &app{
		cfg:    cfg,
		log:    log,
		db:     gormDB,
		redis:  rdb,
		orders: orders,
		tx:     infraRepo.NewTxManagerGorm(gormDB, sequences),
	}, nil
}

func (a *app) orderUsecase() *usecase.OrderUsecase {
	opts := []usecase.OrderOption{usecase.WithOrderLogger(a.log)}
	if a.redis != nil {
		opts = append(opts, usecase.WithOrderLock(infraRepo.NewOrderLockRedis(a.redis), a.cfg.OrderLockTTL))
	}
	addresses := infraRepo.NewAddressGormRepository(a.db)
	return usecase.NewOrderUsecase(a.tx, addresses, opts...)
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(a.db)
	productRepo := infraRepo.NewProductGormRepository(a.db)
	cartRepo := infraRepo.NewCartGormRepository(a.db)
	addressRepo := infraRepo.NewAddressGormRepository(a.db)
	auditRepo := infraRepo.NewAuditLogGormRepository(a.db)

	//Usecase生成
	orderUC := a.orderUsecase()
	adminOrderUC := usecase.NewAdminOrderUsecase(a.tx, a.log)
	adminUserUC := usecase.NewAdminUserUsecase(a.tx, a.log)
	auditLogUC := usecase.NewAuditLogUsecase(auditRepo)
	productUC := usecase.NewProductUsecase(productRepo, a.tx, a.log)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo)
	addressUC := usecase.NewAddressUsecase(addressRepo)

	//Handler生成
	e := server.New(a.log)
	checks := map[string]server.HealthCheck{
		"db": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	server.RegisterRoutes(e, a.cfg, userRepo, server.Handlers{
		Products:      handler.NewProductHandler(productUC),
		AdminProducts: handler.NewAdminProductHandler(productUC),
		Cart:          handler.NewCartHandler(cartUC),
		Addresses:     handler.NewAddressHandler(addressUC),
		Orders:        handler.NewOrderHandler(orderUC, adminOrderUC),
		AdminOrders:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminUsers:    handler.NewAdminUserHandler(adminUserUC),
		AuditLogs:     handler.NewAdminAuditLogHandler(auditLogUC),
	}, checks)

	//カートのクリアに失敗した注文を定期的にやり直す
	go func() {
		ticker := time.NewTicker(a.cfg.CartRetryAfter)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := orderUC.RetryPendingCartClears(ctx, a.cfg.CartRetryAfter, 100)
				if err != nil {
					a.log.WithError(err).Warn("cart reconcile failed")
					continue
				}
				if n > 0 {
					a.log.WithField("cleared", n).Info("cart reconcile")
				}
			}
		}
	}()

	//Server起動
	return server.Start(ctx, e, ":"+a.cfg.Port, a.log)
}

func migrateUp(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	log := newLogger(cfg)

	applied, err := db.MigrateUp(cfg.MigrateURL())
	if err != nil {
		return err
	}
	log.WithField("applied", applied).Info("migrate done")
	return nil
}

func reconcileCarts(c *cli.Context) error {
	a, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.orderUsecase().RetryPendingCartClears(c.Context, a.cfg.CartRetryAfter, c.Int("limit"))
	if err != nil {
		return err
	}
	a.log.WithField("cleared", n).Info("reconcile-carts done")
	return nil
}

func issueToken(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	token, err := middleware.IssueToken(cfg.JWTSecret, c.Int64("user-id"), c.String("role"), c.Int("tv"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}
