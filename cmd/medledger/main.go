package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/caremesh/medledger/internal/api/server"
	"github.com/caremesh/medledger/internal/config"
	"github.com/caremesh/medledger/internal/keystore"
	"github.com/caremesh/medledger/internal/ledger"
	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
	"github.com/caremesh/medledger/internal/registry"
	"github.com/caremesh/medledger/internal/repository/postgres"
	"github.com/caremesh/medledger/internal/service"
	storage "github.com/caremesh/medledger/internal/storage/minio"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogJSON)

	var auditSink model.AuditStore
	if cfg.Database.DSN != "" {
		db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("failed to initialize audit database", "error", err)
		}
		defer db.Close()
		auditSink = postgres.NewAccessLogRepository(db)
	} else {
		logger.Info("no database configured, audit trail is in-memory only")
	}

	var archive model.Archive
	if cfg.Archive.Endpoint != "" {
		minioClient, err := minio.New(cfg.Archive.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Archive.AccessKey, cfg.Archive.SecretKey, ""),
			Secure: cfg.Archive.UseSSL,
		})
		if err != nil {
			logger.Fatal("failed to create minio client", "error", err)
		}
		archive, err = storage.NewArchive(ctx, minioClient, cfg.Archive.Bucket)
		if err != nil {
			logger.Fatal("failed to initialize payload archive", "error", err)
		}
	} else {
		logger.Info("no archive endpoint configured, payload archiving disabled")
	}

	connector := ledger.New(cfg.Ledger, logger)
	defer connector.Close()

	keys := keystore.New(logger)
	identities := service.NewIdentities(keys)
	reg := registry.New(auditSink, logger)

	consentService := service.NewConsent(reg, connector, identities, keys, archive, logger)
	credentialService := service.NewCredential(identities, keys, logger)
	accessService := service.NewAccess(reg, keys, logger)
	core := service.NewCore(consentService, credentialService, accessService, keys, connector)

	httpServer := server.New(core, cfg.HTTP.Port, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(); err != nil {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	// Connect eagerly so the first anchoring call does not pay the dial
	// cost. Failure here is fine; anchoring falls back to simulation.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := connector.Ensure(ctx); err != nil {
			logger.Warn("ledger unreachable at startup, running in simulation mode", "error", err)
		}
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
