package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/reunion/internal/auth"
	"github.com/dukerupert/reunion/internal/backup"
	"github.com/dukerupert/reunion/internal/media"
	"github.com/dukerupert/reunion/internal/model"
	"github.com/dukerupert/reunion/internal/store"
)

// fakeSyncer records calls and then returns err.
type fakeSyncer struct {
	mu       sync.Mutex
	err      error
	appended []model.FamilyMember
	deleted  []model.FamilyMember
}

func (f *fakeSyncer) AppendMember(ctx context.Context, m model.FamilyMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, m)
	return f.err
}

func (f *fakeSyncer) DeleteMember(ctx context.Context, m model.FamilyMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, m)
	return f.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	notified []model.FamilyMember
}

func (f *fakeNotifier) NotifyRegistration(ctx context.Context, m model.FamilyMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, m)
	return f.err
}

type fakeBackups struct {
	enabled bool
	busy    bool
	runs    int
}

func (f *fakeBackups) Enabled() bool { return f.enabled }

func (f *fakeBackups) Status() backup.Status {
	if !f.enabled {
		return backup.Status{State: backup.StateDisabled}
	}
	return backup.Status{State: backup.StateIdle, LastKey: "backups/test.json.enc"}
}

func (f *fakeBackups) RunNow(ctx context.Context) (string, error) {
	if f.busy {
		return "", backup.ErrBusy
	}
	f.runs++
	return "backups/test.json.enc", nil
}

type testEnv struct {
	members *store.FamilyMemberFileStore
	photos  *store.GalleryPhotoFileStore
	media   *media.Pipeline
	syncer   *fakeSyncer
	notifier *fakeNotifier
	backups *fakeBackups
	tasks   *Tasks
	mux     *http.ServeMux
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	members, err := store.NewFamilyMemberFileStore(filepath.Join(dir, "data", "family.json"))
	if err != nil {
		t.Fatalf("member store: %v", err)
	}
	photos, err := store.NewGalleryPhotoFileStore(filepath.Join(dir, "data", "gallery.json"))
	if err != nil {
		t.Fatalf("gallery store: %v", err)
	}
	pipeline := media.New(filepath.Join(dir, "uploads"), filepath.Join(dir, "gallery"), quietLogger())
	if err := pipeline.Init(); err != nil {
		t.Fatalf("media init: %v", err)
	}

	env := &testEnv{
		members: members,
		photos:  photos,
		media:   pipeline,
		syncer:   &fakeSyncer{},
		notifier: &fakeNotifier{},
		backups: &fakeBackups{},
		tasks:   NewTasks(quietLogger()),
		mux:     http.NewServeMux(),
	}
	errs := NewErrors(true, quietLogger())

	fh := NewFamilyMemberHandler(members, pipeline, env.syncer, env.notifier, env.tasks, nil, errs, quietLogger())
	gh := NewGalleryHandler(photos, pipeline, nil, errs, quietLogger())
	ah := NewAdminHandler(auth.NewAdminSecret("s3cret", "", false), members, env.backups, errs, quietLogger())

	env.mux.HandleFunc("POST /api/register", fh.Register)
	env.mux.HandleFunc("GET /api/family", fh.List)
	env.mux.HandleFunc("GET /api/family/{id}", fh.Get)
	env.mux.HandleFunc("PUT /api/family/{id}", fh.Update)
	env.mux.HandleFunc("DELETE /api/family/{id}", fh.Delete)
	env.mux.HandleFunc("GET /api/stats", fh.Stats)
	env.mux.HandleFunc("GET /api/tree", fh.Tree)
	env.mux.HandleFunc("POST /api/admin/verify", ah.Verify)
	env.mux.HandleFunc("GET /api/admin/registrations", ah.Registrations)
	env.mux.HandleFunc("GET /api/admin/registrations/export", ah.Export)
	env.mux.HandleFunc("GET /api/admin/stats", ah.Stats)
	env.mux.HandleFunc("GET /api/admin/backup", ah.BackupStatus)
	env.mux.HandleFunc("POST /api/admin/backup", ah.RunBackup)
	env.mux.HandleFunc("GET /api/gallery", gh.List)
	env.mux.HandleFunc("POST /api/gallery/upload", gh.Upload)
	env.mux.HandleFunc("DELETE /api/gallery/{id}", gh.Delete)
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// drain waits for sheet sync and other background work.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.tasks.Wait(ctx); err != nil {
		t.Fatalf("tasks did not finish: %v", err)
	}
}

func (e *testEnv) memberCount(t *testing.T) int {
	t.Helper()
	members, err := e.members.List()
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	return len(members)
}

type upload struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(f.data)
	}
	mw.Close()

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		img.Set(0, y, color.NRGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestErrorsInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/family", nil)

	rec := httptest.NewRecorder()
	NewErrors(true, quietLogger()).Internal(rec, req, "Failed to retrieve family data", os.ErrPermission)
	got := decode[failureResponse](t, rec)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got.Success || got.Error != os.ErrPermission.Error() {
		t.Errorf("development body = %+v, want error detail", got)
	}

	rec = httptest.NewRecorder()
	NewErrors(false, quietLogger()).Internal(rec, req, "Failed to retrieve family data", os.ErrPermission)
	got = decode[failureResponse](t, rec)
	if got.Error != "" {
		t.Errorf("production error = %q, want empty", got.Error)
	}
	if got.Message != "Failed to retrieve family data" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestTasksWait(t *testing.T) {
	tasks := NewTasks(quietLogger())
	var ran sync.WaitGroup
	ran.Add(2)
	tasks.Go("ok", func(ctx context.Context) error {
		ran.Done()
		return nil
	})
	tasks.Go("fails", func(ctx context.Context) error {
		ran.Done()
		return io.ErrUnexpectedEOF
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tasks.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	ran.Wait()
}

func TestTasksWaitTimeout(t *testing.T) {
	tasks := NewTasks(quietLogger())
	release := make(chan struct{})
	tasks.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tasks.Wait(ctx); err == nil {
		t.Fatal("Wait returned nil while a task was running")
	}
}
