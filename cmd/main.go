package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suteetoe/pallet-service/internal/handler"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/pkg/config"
	"github.com/suteetoe/pallet-service/pkg/database"
	"github.com/suteetoe/pallet-service/pkg/jwtutil"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/revocation"
	"github.com/suteetoe/pallet-service/pkg/storage"
	"github.com/suteetoe/pallet-service/prometheus"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	root := &cli.Command{
		Name:  "pallet-service",
		Usage: "Pallet catalog API server",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			createAdminCommand(),
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return runServer(ctx, "")
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "listen port, overrides SERVER_PORT"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c.String("port"))
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and exit",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if _, err := database.InitDB(ctx, &cfg.Database); err != nil {
				return err
			}
			log.Info("Migrations applied", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}

func createAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-admin",
		Usage: "Create an administrator account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "name", Value: "Administrator"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := database.InitDB(ctx, &cfg.Database)
			if err != nil {
				return err
			}
			user, err := createAdmin(ctx, db, c.String("username"), c.String("password"), c.String("name"))
			if err != nil {
				return err
			}
			log.Info("Admin created", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
			return nil
		},
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.InitLogger(cfg)
	return cfg, logger.GetLogger(), nil
}

func runServer(ctx context.Context, port string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if port != "" {
		cfg.Server.Port = port
	}
	log.Info("Starting pallet service...", cfg.LogFields()...)

	prometheus.InitMetrics(cfg)

	db, err := database.InitDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	log.Info("Database connection established")

	files, err := storage.NewLocal(cfg.Upload.Dir, cfg.Upload.MaxFileSize, cfg.Upload.MaxZipSize)
	if err != nil {
		return fmt.Errorf("initialize upload storage: %w", err)
	}

	var (
		rdb     *redis.Client
		revoked revocation.Store
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		revoked = revocation.NewRedisStore(rdb)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		revoked = revocation.NewMemoryStore()
		log.Warn("REDIS_ADDR not set, using in-process token revocation and no login rate limit")
	}

	e := handler.NewServer(handler.Deps{
		DB:      db,
		Config:  cfg,
		JWT:     jwtutil.NewJWTUtil(&cfg.JWT),
		Revoked: revoked,
		Files:   files,
		Redis:   rdb,
		Logger:  log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		errCh <- e.Start(":" + cfg.Server.Port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func createAdmin(ctx context.Context, db *gorm.DB, username, password, name string) (*model.User, error) {
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username: username,
		Password: string(hashed),
		Name:     name,
		IsAdmin:  true,
		Status:   model.UserStatusActive,
	}
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create admin %q: %w", username, err)
	}
	return user, nil
}
