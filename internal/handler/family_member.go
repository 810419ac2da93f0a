package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/reunion/internal/auth"
	"github.com/dukerupert/reunion/internal/family"
	"github.com/dukerupert/reunion/internal/media"
	"github.com/dukerupert/reunion/internal/model"
	"github.com/dukerupert/reunion/internal/store"
	"github.com/dukerupert/reunion/internal/websocket"
)

// Registration bodies hold the form fields plus at most one profile photo.
const registrationMaxBytes = media.ProfileMaxBytes + 1<<20

// Syncer mirrors registrations into an external spreadsheet.
type Syncer interface {
	AppendMember(ctx context.Context, m model.FamilyMember) error
	DeleteMember(ctx context.Context, m model.FamilyMember) error
}

// Notifier tells the organizer about new registrations.
type Notifier interface {
	NotifyRegistration(ctx context.Context, m model.FamilyMember) error
}

type FamilyMemberHandler struct {
	members  store.FamilyMembers
	media    *media.Pipeline
	syncer   Syncer
	notifier Notifier
	tasks    *Tasks
	hub      *websocket.Hub
	errs     *Errors
	logger   *slog.Logger
}

// NewFamilyMemberHandler wires the member endpoints. syncer, notifier and hub
// may be nil.
func NewFamilyMemberHandler(
	members store.FamilyMembers,
	pipeline *media.Pipeline,
	syncer Syncer,
	notifier Notifier,
	tasks *Tasks,
	hub *websocket.Hub,
	errs *Errors,
	logger *slog.Logger,
) *FamilyMemberHandler {
	return &FamilyMemberHandler{
		members:  members,
		media:    pipeline,
		syncer:   syncer,
		notifier: notifier,
		tasks:    tasks,
		hub:      hub,
		errs:     errs,
		logger:   logger,
	}
}

func (h *FamilyMemberHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *FamilyMemberHandler) Register(w http.ResponseWriter, r *http.Request) {
	p, err := readPayload(w, r, registrationMaxBytes)
	if err != nil {
		h.errs.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	var member model.FamilyMember
	if err := applyMemberFields(&member, p.values, false); err != nil {
		h.errs.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	if fh := p.file("photo"); fh != nil {
		url, ok := h.savePhoto(w, r, fh)
		if !ok {
			return
		}
		member.Photo = &url
	}

	id, err := uuid.NewV7()
	if err != nil {
		h.discardPhoto(member.Photo)
		h.errs.Internal(w, r, "Registration failed", err)
		return
	}
	now := time.Now().UTC()
	member.ID = id.String()
	member.CreatedAt = now
	member.UpdatedAt = now

	if err := h.members.Create(&member); err != nil {
		h.discardPhoto(member.Photo)
		h.errs.Internal(w, r, "Registration failed", err)
		return
	}
	h.logger.Info("member registered", "id", member.ID, "generation", member.Generation)

	if h.syncer != nil {
		h.tasks.Go("sheet append", func(ctx context.Context) error {
			return h.syncer.AppendMember(ctx, member)
		})
	}
	if h.notifier != nil {
		h.tasks.Go("registration notice", func(ctx context.Context) error {
			return h.notifier.NotifyRegistration(ctx, member)
		})
	}
	h.broadcast(websocket.NewMessage(websocket.TopicMember, "created", member.ID, member))

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registration successful!",
		"member":  member,
	})
}

func (h *FamilyMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List()
	if err != nil {
		h.errs.Internal(w, r, "Failed to retrieve family data", err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *FamilyMemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.GetByID(r.PathValue("id"))
	if err != nil {
		h.errs.Internal(w, r, "Failed to retrieve family member", err)
		return
	}
	if member == nil {
		h.errs.Fail(w, http.StatusNotFound, "Family member not found")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *FamilyMemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.members.GetByID(r.PathValue("id"))
	if err != nil {
		h.errs.Internal(w, r, "Failed to update family member", err)
		return
	}
	if existing == nil {
		h.errs.Fail(w, http.StatusNotFound, "Family member not found")
		return
	}

	p, err := readPayload(w, r, registrationMaxBytes)
	if err != nil {
		h.errs.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	updated := *existing
	if err := applyMemberFields(&updated, p.values, true); err != nil {
		h.errs.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	oldPhoto := existing.Photo
	if fh := p.file("photo"); fh != nil {
		url, ok := h.savePhoto(w, r, fh)
		if !ok {
			return
		}
		updated.Photo = &url
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := h.members.Update(&updated); err != nil {
		if updated.Photo != oldPhoto {
			h.discardPhoto(updated.Photo)
		}
		h.errs.Internal(w, r, "Failed to update family member", err)
		return
	}
	if updated.Photo != oldPhoto {
		h.discardPhoto(oldPhoto)
	}

	h.broadcast(websocket.NewMessage(websocket.TopicMember, "updated", updated.ID, updated))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Family member updated",
		"member":  updated,
	})
}

// Delete removes a member, its photo file and its spreadsheet row. It serves
// both the public and the admin delete routes.
func (h *FamilyMemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.Delete(r.PathValue("id"))
	if err != nil {
		h.errs.Internal(w, r, "Failed to delete family member", err)
		return
	}
	if member == nil {
		h.errs.Fail(w, http.StatusNotFound, "Family member not found")
		return
	}
	h.logger.Info("member deleted", "id", member.ID, "admin", auth.IsAdmin(r.Context()))

	h.discardPhoto(member.Photo)
	if h.syncer != nil {
		removed := *member
		h.tasks.Go("sheet delete", func(ctx context.Context) error {
			return h.syncer.DeleteMember(ctx, removed)
		})
	}
	h.broadcast(websocket.NewMessage(websocket.TopicMember, "deleted", member.ID, nil))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Family member deleted",
	})
}

func (h *FamilyMemberHandler) Stats(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List()
	if err != nil {
		h.errs.Internal(w, r, "Failed to calculate statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, family.ComputeStats(members))
}

type treeResponse struct {
	Nodes       []model.FamilyMember `json:"nodes"`
	Edges       []family.Edge        `json:"edges"`
	Generations []family.Generation  `json:"generations"`
}

func (h *FamilyMemberHandler) Tree(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List()
	if err != nil {
		h.errs.Internal(w, r, "Failed to build family tree", err)
		return
	}
	writeJSON(w, http.StatusOK, treeResponse{
		Nodes:       members,
		Edges:       family.BuildTree(members),
		Generations: family.GroupByGeneration(members),
	})
}

// savePhoto stores a profile photo, writing the error response itself when
// it fails.
func (h *FamilyMemberHandler) savePhoto(w http.ResponseWriter, r *http.Request, fh *multipart.FileHeader) (string, bool) {
	url, err := h.media.SaveProfile(fh)
	switch {
	case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrTooLarge):
		h.errs.Fail(w, http.StatusBadRequest, err.Error())
		return "", false
	case err != nil:
		h.errs.Internal(w, r, "Failed to save photo", err)
		return "", false
	}
	return url, true
}

// discardPhoto deletes a stored photo. Failures only get logged since the
// record change has already been decided.
func (h *FamilyMemberHandler) discardPhoto(photo *string) {
	if photo == nil || *photo == "" {
		return
	}
	if err := h.media.Remove(*photo); err != nil {
		h.logger.Warn("remove member photo", "photo", *photo, "error", err)
	}
}
