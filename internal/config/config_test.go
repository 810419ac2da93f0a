package config

import (
	"testing"
	"time"

	"github.com/dukerupert/reunion/internal/auth"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != "3001" {
		t.Errorf("port = %q, want %q", c.Port, "3001")
	}
	if c.StoreDriver != "json" {
		t.Errorf("store driver = %q, want %q", c.StoreDriver, "json")
	}
	if c.Production() {
		t.Error("expected development mode by default")
	}
	if c.AdminConfigured() {
		t.Error("expected admin password unset")
	}
	if c.SheetsConfigured() {
		t.Error("expected sheets sync disabled")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("ADMIN_PASSWORD", "encanto")
	t.Setenv("BACKUP_INTERVAL", "24h")
	t.Setenv("STORE_DRIVER", "sqlite")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != "9090" {
		t.Errorf("port = %q, want %q", c.Port, "9090")
	}
	if !c.Production() {
		t.Error("expected production mode")
	}
	if !c.AdminConfigured() {
		t.Error("expected admin password configured")
	}
	if c.BackupInterval != 24*time.Hour {
		t.Errorf("backup interval = %v, want 24h", c.BackupInterval)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestSheetsConfiguredNeedsAllParts(t *testing.T) {
	c := Config{SheetsEnabled: true, SheetID: "abc"}
	if c.SheetsConfigured() {
		t.Error("expected unconfigured without credentials")
	}
	c.CredentialsJSON = "{}"
	if !c.SheetsConfigured() {
		t.Error("expected configured with flag, id and credentials")
	}
	c.SheetsEnabled = false
	if c.SheetsConfigured() {
		t.Error("expected unconfigured when flag is off")
	}
}

func TestAdminConfiguredMatchesSecret(t *testing.T) {
	tests := []Config{
		{},
		{AdminPassword: "casita"},
		{AdminPasswordHash: "$2a$10$abcdefghijklmnopqrstuv"},
		{AdminPasswordHash: "   "},
	}
	for _, c := range tests {
		secret := auth.NewAdminSecret(c.AdminPassword, c.AdminPasswordHash, false)
		if c.AdminConfigured() != secret.Configured() {
			t.Errorf("%+v: AdminConfigured = %v, secret.Configured = %v", c, c.AdminConfigured(), secret.Configured())
		}
	}
}
