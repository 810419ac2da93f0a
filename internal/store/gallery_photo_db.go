package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/reunion/internal/model"
)

type GalleryPhotoDBStore struct {
	db *sql.DB
}

func NewGalleryPhotoDBStore(db *sql.DB) *GalleryPhotoDBStore {
	return &GalleryPhotoDBStore{db: db}
}

func (s *GalleryPhotoDBStore) List() ([]model.GalleryPhoto, error) {
	rows, err := s.db.Query("SELECT id, url, caption, uploaded_by, created_at FROM gallery_photos ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query gallery photos: %w", err)
	}
	defer rows.Close()

	photos := []model.GalleryPhoto{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, *p)
	}
	return photos, rows.Err()
}

func (s *GalleryPhotoDBStore) GetByID(id string) (*model.GalleryPhoto, error) {
	p, err := scanPhoto(s.db.QueryRow("SELECT id, url, caption, uploaded_by, created_at FROM gallery_photos WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *GalleryPhotoDBStore) CreateMany(photos []model.GalleryPhoto) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO gallery_photos (id, url, caption, uploaded_by, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, p := range photos {
		if _, err := stmt.Exec(p.ID, p.URL, p.Caption, p.UploadedBy, formatTime(p.CreatedAt)); err != nil {
			return fmt.Errorf("insert gallery photo %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (s *GalleryPhotoDBStore) Delete(id string) (*model.GalleryPhoto, error) {
	p, err := s.GetByID(id)
	if err != nil || p == nil {
		return nil, err
	}
	if _, err := s.db.Exec("DELETE FROM gallery_photos WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete gallery photo: %w", err)
	}
	return p, nil
}

func scanPhoto(row rowScanner) (*model.GalleryPhoto, error) {
	var (
		p         model.GalleryPhoto
		createdAt string
	)
	err := row.Scan(&p.ID, &p.URL, &p.Caption, &p.UploadedBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan gallery photo: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}
