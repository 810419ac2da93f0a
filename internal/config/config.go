package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port       string `envconfig:"PORT" default:"3001"`
	Env        string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	ClientURL  string `envconfig:"CLIENT_URL" default:"*"`
	DataDir    string `envconfig:"DATA_DIR" default:"data"`
	UploadsDir string `envconfig:"UPLOADS_DIR" default:"uploads"`
	GalleryDir string `envconfig:"GALLERY_DIR" default:"gallery"`

	// StoreDriver selects the record store backend: "json" or "sqlite".
	StoreDriver string `envconfig:"STORE_DRIVER" default:"json"`
	DBPath      string `envconfig:"DB_PATH" default:"reunion.db"`

	AdminPassword     string `envconfig:"ADMIN_PASSWORD"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`
	AdminFailClosed   bool   `envconfig:"ADMIN_FAIL_CLOSED" default:"false"`

	SheetsEnabled   bool   `envconfig:"GOOGLE_SHEETS_ENABLED" default:"false"`
	SheetID         string `envconfig:"GOOGLE_SHEET_ID"`
	SheetName       string `envconfig:"GOOGLE_SHEET_NAME" default:"Sheet1"`
	CredentialsJSON string `envconfig:"GOOGLE_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE"`

	PostmarkToken   string `envconfig:"POSTMARK_SERVER_TOKEN"`
	NotifyFromEmail string `envconfig:"NOTIFY_FROM_EMAIL"`
	NotifyToEmail   string `envconfig:"NOTIFY_TO_EMAIL"`

	BackupEndpoint   string        `envconfig:"BACKUP_S3_ENDPOINT"`
	BackupBucket     string        `envconfig:"BACKUP_S3_BUCKET"`
	BackupRegion     string        `envconfig:"BACKUP_S3_REGION" default:"auto"`
	BackupAccessKey  string        `envconfig:"BACKUP_S3_ACCESS_KEY"`
	BackupSecretKey  string        `envconfig:"BACKUP_S3_SECRET_KEY"`
	BackupPassphrase string        `envconfig:"BACKUP_PASSPHRASE"`
	BackupInterval   time.Duration `envconfig:"BACKUP_INTERVAL" default:"0s"`
}

// Load reads an optional .env file and then the process environment.
// Variables already present in the environment win over the .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	switch c.StoreDriver {
	case "json", "sqlite":
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return c, nil
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c Config) MembersFile() string {
	return filepath.Join(c.DataDir, "family.json")
}

func (c Config) GalleryFile() string {
	return filepath.Join(c.DataDir, "gallery.json")
}

// AdminConfigured reports whether any admin secret is set. It agrees with
// auth.AdminSecret.Configured for the same values.
func (c Config) AdminConfigured() bool {
	return c.AdminPassword != "" || strings.TrimSpace(c.AdminPasswordHash) != ""
}

// SheetsConfigured reports whether external sync is switched on and has
// everything it needs.
func (c Config) SheetsConfigured() bool {
	return c.SheetsEnabled && c.SheetID != "" && (c.CredentialsJSON != "" || c.CredentialsFile != "")
}
