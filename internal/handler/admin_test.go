package handler

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/reunion/internal/auth"
	"github.com/dukerupert/reunion/internal/backup"
	"github.com/dukerupert/reunion/internal/model"
)

func TestAdminVerify(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/admin/verify", map[string]string{"password": "s3cret"}))
	if rec.Code != http.StatusOK {
		t.Errorf("correct password status = %d, want 200", rec.Code)
	}

	rec = env.do(t, jsonRequest(t, http.MethodPost, "/api/admin/verify", map[string]string{"password": "guess"}))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/verify", strings.NewReader("{"))
	rec = env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestAdminVerifyWithoutPassword(t *testing.T) {
	tests := []struct {
		name       string
		failClosed bool
		want       int
	}{
		{"open", false, http.StatusOK},
		{"fail closed", true, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandler(auth.NewAdminSecret("", "", tt.failClosed), nil, &fakeBackups{}, NewErrors(false, quietLogger()), quietLogger())
			for _, body := range []string{"", "{", `{"password":""}`} {
				rec := httptest.NewRecorder()
				h.Verify(rec, httptest.NewRequest(http.MethodPost, "/api/admin/verify", strings.NewReader(body)))
				if rec.Code != tt.want {
					t.Errorf("body %q status = %d, want %d", body, rec.Code, tt.want)
				}
			}
		})
	}
}

func TestAdminRegistrations(t *testing.T) {
	env := setupEnv(t)
	m := register(t, env, validRegistration())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/registrations", nil))
	list := decode[[]model.FamilyMember](t, rec)
	if len(list) != 1 || list[0].ID != m.ID {
		t.Errorf("registrations = %+v", list)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"totalMembers":1`) {
		t.Errorf("stats = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminExport(t *testing.T) {
	env := setupEnv(t)
	first := validRegistration()
	first["name"] = `Alma "Abuela" Madrigal`
	first["generation"] = "1"
	register(t, env, first)
	register(t, env, validRegistration())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/registrations/export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, exportFilename) {
		t.Errorf("Content-Disposition = %q", got)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(exportHeader, ",") {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != `Alma "Abuela" Madrigal` || rows[1][5] != "1" {
		t.Errorf("first row = %v", rows[1])
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/registrations/export?generation=2", nil))
	rows, err = csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "Julieta Madrigal" {
		t.Errorf("filtered rows = %v", rows)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/registrations/export?generation=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", rec.Code)
	}
}

func TestAdminBackup(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/admin/backup", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled run status = %d, want 503", rec.Code)
	}
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/backup", nil))
	if got := decode[backup.Status](t, rec); got.State != backup.StateDisabled {
		t.Errorf("state = %q, want disabled", got.State)
	}

	env.backups.enabled = true
	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/admin/backup", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, body %s", rec.Code, rec.Body.String())
	}
	if env.backups.runs != 1 || !strings.Contains(rec.Body.String(), "backups/test.json.enc") {
		t.Errorf("runs = %d, body %s", env.backups.runs, rec.Body.String())
	}
}

func TestAdminBackupBusy(t *testing.T) {
	env := setupEnv(t)
	env.backups.enabled = true
	env.backups.busy = true

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/admin/backup", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
