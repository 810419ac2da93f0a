package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/reunion/internal/auth"
	"github.com/dukerupert/reunion/internal/backup"
	"github.com/dukerupert/reunion/internal/config"
	"github.com/dukerupert/reunion/internal/database"
	"github.com/dukerupert/reunion/internal/email"
	"github.com/dukerupert/reunion/internal/handler"
	"github.com/dukerupert/reunion/internal/logging"
	"github.com/dukerupert/reunion/internal/media"
	"github.com/dukerupert/reunion/internal/server"
	"github.com/dukerupert/reunion/internal/sheets"
	"github.com/dukerupert/reunion/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.Production())

	members, photos, closer, err := openStores(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	// reunion restore <snapshot.json.enc> merges a downloaded backup into the
	// configured store and exits.
	if len(os.Args) == 3 && os.Args[1] == "restore" {
		if err := restore(os.Args[2], cfg.BackupPassphrase, members, photos, logger); err != nil {
			slog.Error("restore failed", "file", os.Args[2], "error", err)
			closer.Close()
			os.Exit(1)
		}
		return
	}

	pipeline := media.New(cfg.UploadsDir, cfg.GalleryDir, logger.With("component", "media"))
	if err := pipeline.Init(); err != nil {
		slog.Error("failed to create media directories", "error", err)
		os.Exit(1)
	}

	secret := auth.NewAdminSecret(cfg.AdminPassword, cfg.AdminPasswordHash, cfg.AdminFailClosed)
	switch {
	case cfg.AdminConfigured():
	case cfg.AdminFailClosed:
		slog.Warn("no admin password configured, admin routes will reject every request")
	default:
		slog.Warn("no admin password configured, admin routes are open to anyone")
	}

	var syncer handler.Syncer
	switch {
	case cfg.SheetsConfigured():
		sheetsClient, err := sheets.New(context.Background(), sheets.Config{
			Enabled:         true,
			SpreadsheetID:   cfg.SheetID,
			SheetName:       cfg.SheetName,
			CredentialsJSON: cfg.CredentialsJSON,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			slog.Error("google sheets sync disabled", "error", err)
			break
		}
		syncer = sheetsClient
		slog.Info("google sheets sync enabled", "sheet", cfg.SheetName)
	case cfg.SheetsEnabled:
		slog.Warn("google sheets sync disabled, sheet id or credentials missing")
	}

	var notifier handler.Notifier
	if ec := email.NewClient(cfg.PostmarkToken, cfg.NotifyFromEmail, cfg.NotifyToEmail); ec.Configured() {
		notifier = ec
	}

	srv := server.New(server.Config{
		ClientURL:    cfg.ClientURL,
		ExposeErrors: !cfg.Production(),
		Admin:        secret,
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  cfg.BackupEndpoint,
				Bucket:    cfg.BackupBucket,
				Region:    cfg.BackupRegion,
				AccessKey: cfg.BackupAccessKey,
				SecretKey: cfg.BackupSecretKey,
			},
			Passphrase: cfg.BackupPassphrase,
			Interval:   cfg.BackupInterval,
		},
		Members:  members,
		Photos:   photos,
		Media:    pipeline,
		Syncer:   syncer,
		Notifier: notifier,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	srv.BackupManager().Start(bgCtx)

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("reunion server starting", "addr", httpServer.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	srv.BackupManager().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := srv.Tasks().Wait(drainCtx); err != nil {
		slog.Warn("background tasks still running at exit", "error", err)
	}
}

func restore(path, passphrase string, members store.FamilyMembers, photos store.GalleryPhotos, logger *slog.Logger) error {
	if passphrase == "" {
		return errors.New("BACKUP_PASSPHRASE is not set")
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := backup.Restore(sealed, passphrase, members, photos)
	if err != nil {
		return err
	}
	logger.Info("snapshot restored", "members", res.Members, "photos", res.Photos)
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStores picks the record store backend named by STORE_DRIVER.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.FamilyMembers, store.GalleryPhotos, io.Closer, error) {
	if cfg.StoreDriver == "sqlite" {
		db, err := database.Open(ctx, cfg.DBPath, logger.With("component", "database"))
		if err != nil {
			return nil, nil, nil, err
		}
		return store.NewFamilyMemberDBStore(db), store.NewGalleryPhotoDBStore(db), db, nil
	}

	members, err := store.NewFamilyMemberFileStore(cfg.MembersFile())
	if err != nil {
		return nil, nil, nil, err
	}
	photos, err := store.NewGalleryPhotoFileStore(cfg.GalleryFile())
	if err != nil {
		return nil, nil, nil, err
	}
	return members, photos, nopCloser{}, nil
}
