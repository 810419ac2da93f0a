package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/reunion/internal/auth"
	"github.com/dukerupert/reunion/internal/backup"
	"github.com/dukerupert/reunion/internal/family"
	"github.com/dukerupert/reunion/internal/model"
	"github.com/dukerupert/reunion/internal/store"
)

const exportFilename = "madrigal-family-registrations.csv"

var exportHeader = []string{"Name", "Email", "Phone", "Relationship", "Connected Through", "Generation", "Branch", "Attendees"}

// Backups is the admin-facing side of the backup manager.
type Backups interface {
	Enabled() bool
	Status() backup.Status
	RunNow(ctx context.Context) (string, error)
}

type AdminHandler struct {
	secret  *auth.AdminSecret
	members store.FamilyMembers
	backups Backups
	errs    *Errors
	logger  *slog.Logger
}

func NewAdminHandler(secret *auth.AdminSecret, members store.FamilyMembers, backups Backups, errs *Errors, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{secret: secret, members: members, backups: backups, errs: errs, logger: logger}
}

// Verify lets the admin page check a password before storing it client side.
// With no password configured it succeeds for any body, unless admin access
// fails closed.
func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	// Without a configured password the body is irrelevant; Check decides
	// between open and fail-closed on its own.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil && h.secret.Configured() {
		h.errs.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !h.secret.Check(req.Password) {
		h.logger.Warn("admin password rejected")
		h.errs.Fail(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) Registrations(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List()
	if err != nil {
		h.errs.Internal(w, r, "Failed to retrieve registrations", err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List()
	if err != nil {
		h.errs.Internal(w, r, "Failed to calculate statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, family.ComputeStats(members))
}

// Export streams registrations as CSV, optionally limited to one generation.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter := -1
	if g := r.URL.Query().Get("generation"); g != "" && g != "all" {
		n, err := strconv.Atoi(g)
		if err != nil || n < 0 {
			h.errs.Fail(w, http.StatusBadRequest, "generation must be a whole number")
			return
		}
		filter = n
	}

	members, err := h.members.List()
	if err != nil {
		h.errs.Internal(w, r, "Failed to export registrations", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	for _, m := range members {
		if filter >= 0 && m.Generation != filter {
			continue
		}
		cw.Write(exportRow(m))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("write csv export", "error", err)
	}
}

func exportRow(m model.FamilyMember) []string {
	return []string{
		m.Name,
		m.Email,
		m.Phone,
		m.RelationshipType,
		m.ConnectedThrough,
		strconv.Itoa(m.Generation),
		m.FamilyBranch,
		strconv.Itoa(m.Attendees),
	}
}

func (h *AdminHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backups.Status())
}

func (h *AdminHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backups.Enabled() {
		h.errs.Fail(w, http.StatusServiceUnavailable, "Backups are not configured")
		return
	}
	key, err := h.backups.RunNow(r.Context())
	switch {
	case errors.Is(err, backup.ErrBusy):
		h.errs.Fail(w, http.StatusConflict, "A backup is already running")
		return
	case err != nil:
		h.errs.Internal(w, r, "Backup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Backup uploaded",
		"key":     key,
		"status":  h.backups.Status(),
	})
}
