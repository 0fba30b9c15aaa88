package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"zen-accounts/internal/auth"
	"zen-accounts/internal/config"
	apphttp "zen-accounts/internal/http"
	"zen-accounts/internal/mail"
	"zen-accounts/internal/repository"
	"zen-accounts/internal/repository/memory"
	"zen-accounts/internal/repository/sqlite"
	"zen-accounts/internal/service"
	"zen-accounts/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	cfg.ConfigureLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup store: %v", err)
	}
	defer closer.Close()

	if err := store.Init(ctx); err != nil {
		logger.Fatalf("init user directory: %v", err)
	}

	tokens, err := auth.NewJWTIssuer(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatalf("setup token issuer: %v", err)
	}

	mailer, err := buildMailer(cfg, logger)
	if err != nil {
		logger.Fatalf("setup mailer: %v", err)
	}

	authService, err := service.NewAuthService(service.Config{
		ResetURL:    cfg.Reset.URL,
		MailTimeout: cfg.Mail.Timeout,
		Logger:      logger,
	}, service.Dependencies{
		Store:        store,
		Hasher:       auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:       tokens,
		Verification: auth.NewVerificationTokenGenerator(),
		Mailer:       mailer,
	})
	if err != nil {
		logger.Fatalf("setup auth service: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := apphttp.NewRouter(apphttp.NewHandler(authService, logger))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.DirectoryRepository, io.Closer, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		logger.Infof("using sqlite store at %s", cfg.Database.Path)
		return sqlite.NewDirectoryRepository(db), db, nil

	case config.BackendS3:
		client, err := buildS3Client(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		repo, err := storage.NewS3DirectoryRepository(client, storage.Options{
			Bucket:    cfg.Storage.Bucket,
			KeyPrefix: cfg.Storage.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("using s3 store in bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
		return repo, nopCloser{}, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, accounts are lost on restart")
		return memory.NewDirectoryRepository(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func buildS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func buildMailer(cfg config.Config, logger *logrus.Logger) (mail.Sender, error) {
	if cfg.Mail.Driver == config.MailDriverLog {
		logger.Warn("mail driver is log, reset emails are not delivered")
		return mail.NewLogSender(logger), nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Pass,
		From:     cfg.SMTP.From,
	})
}
