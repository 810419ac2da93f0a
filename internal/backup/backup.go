package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/reunion/internal/model"
	"github.com/dukerupert/reunion/internal/store"
)

type putter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the bucket. Endpoint is only needed for S3 compatible
// providers such as R2 or MinIO.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup settings. With a zero Interval only on-demand backups
// run.
type Config struct {
	S3         S3Config
	Passphrase string
	Interval   time.Duration
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback observes every state change.
type StatusCallback func(Status)

var (
	ErrDisabled = errors.New("backup not configured")
	ErrBusy     = errors.New("backup already in progress")
)

const keyLayout = "2006-01-02T150405Z"

// ObjectKey names the object a snapshot taken at t is stored under.
func ObjectKey(t time.Time) string {
	return "backups/reunion-" + t.UTC().Format(keyLayout) + ".json.enc"
}

// Snapshot is the plaintext content of one backup object.
type Snapshot struct {
	TakenAt time.Time            `json:"takenAt"`
	Members []model.FamilyMember `json:"members"`
	Photos  []model.GalleryPhoto `json:"photos"`
}

// Manager writes encrypted snapshots of both collections to S3 compatible
// storage, on a schedule or on demand.
type Manager struct {
	cfg      Config
	members  store.FamilyMembers
	photos   store.GalleryPhotos
	client   putter
	callback StatusCallback
	logger   *slog.Logger

	mu     sync.Mutex
	status Status

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewManager returns a manager that stays disabled unless bucket, keys and
// passphrase are all set.
func NewManager(cfg Config, members store.FamilyMembers, photos store.GalleryPhotos, callback StatusCallback, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		members:  members,
		photos:   photos,
		callback: callback,
		logger:   logger,
		status:   Status{State: StateDisabled},
	}
	if cfg.complete() {
		m.client = dial(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func (c Config) complete() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

func dial(cfg S3Config) *s3.Client {
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

func (m *Manager) Enabled() bool {
	return m.client != nil
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start runs a backup every Interval until ctx ends or Stop is called. It
// does nothing for a disabled manager or a zero interval.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() || m.cfg.Interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.stop = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if _, err := m.RunNow(ctx); err != nil && !errors.Is(err, ErrBusy) {
				m.logger.Error("scheduled backup failed", "error", err)
			}
		}
	}()
}

// Stop ends the schedule and waits for a running backup to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	m.wg.Wait()
}

// transition swaps the status under the lock and reports it outside.
func (m *Manager) transition(next func(prev Status) Status) Status {
	m.mu.Lock()
	s := next(m.status)
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
	return s
}

// RunNow uploads one encrypted snapshot and returns its object key.
func (m *Manager) RunNow(ctx context.Context) (string, error) {
	if !m.Enabled() {
		return "", ErrDisabled
	}

	m.mu.Lock()
	if m.status.InProgress {
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.status.InProgress = true
	m.mu.Unlock()

	m.transition(func(prev Status) Status {
		return Status{State: StateRunning, InProgress: true, LastBackup: prev.LastBackup, LastKey: prev.LastKey}
	})

	snap, key, err := m.upload(ctx)
	if err != nil {
		m.transition(func(prev Status) Status {
			return Status{State: StateError, Error: err.Error(), LastBackup: prev.LastBackup, LastKey: prev.LastKey}
		})
		return "", err
	}

	taken := snap.TakenAt
	m.transition(func(Status) Status {
		return Status{State: StateIdle, LastBackup: &taken, LastKey: key}
	})
	m.logger.Info("backup uploaded", "key", key, "members", len(snap.Members), "photos", len(snap.Photos))
	return key, nil
}

func (m *Manager) upload(ctx context.Context) (*Snapshot, string, error) {
	snap, err := m.snapshot()
	if err != nil {
		return nil, "", err
	}
	plaintext, err := json.Marshal(snap)
	if err != nil {
		return nil, "", fmt.Errorf("encode snapshot: %w", err)
	}
	sealed, err := Encrypt(plaintext, m.cfg.Passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("seal snapshot: %w", err)
	}

	key := ObjectKey(snap.TakenAt)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"members": fmt.Sprint(len(snap.Members)),
			"photos":  fmt.Sprint(len(snap.Photos)),
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("put %s: %w", key, err)
	}
	return snap, key, nil
}

func (m *Manager) snapshot() (*Snapshot, error) {
	members, err := m.members.List()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	photos, err := m.photos.List()
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return &Snapshot{TakenAt: time.Now().UTC(), Members: members, Photos: photos}, nil
}

// Restored counts the records a restore added.
type Restored struct {
	Members int
	Photos  int
}

// Restore opens a sealed snapshot and adds every record whose id is not
// already stored. Existing records are left untouched. Image files are not
// part of a snapshot and have to be copied back separately.
func Restore(sealed []byte, passphrase string, members store.FamilyMembers, photos store.GalleryPhotos) (Restored, error) {
	var res Restored
	plaintext, err := Decrypt(sealed, passphrase)
	if err != nil {
		return res, err
	}
	var snap Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return res, fmt.Errorf("decode snapshot: %w", err)
	}

	for i := range snap.Members {
		m := snap.Members[i]
		existing, err := members.GetByID(m.ID)
		if err != nil {
			return res, fmt.Errorf("look up member %s: %w", m.ID, err)
		}
		if existing != nil {
			continue
		}
		if err := members.Create(&m); err != nil {
			return res, fmt.Errorf("restore member %s: %w", m.ID, err)
		}
		res.Members++
	}

	var missing []model.GalleryPhoto
	for _, p := range snap.Photos {
		existing, err := photos.GetByID(p.ID)
		if err != nil {
			return res, fmt.Errorf("look up photo %s: %w", p.ID, err)
		}
		if existing == nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		if err := photos.CreateMany(missing); err != nil {
			return res, fmt.Errorf("restore photos: %w", err)
		}
		res.Photos = len(missing)
	}
	return res, nil
}
