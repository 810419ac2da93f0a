package store

import (
	"fmt"

	"github.com/dukerupert/reunion/internal/model"
)

// GalleryPhotoFileStore keeps gallery photos in a JSON array file.
type GalleryPhotoFileStore struct {
	file *jsonFile[model.GalleryPhoto]
}

func NewGalleryPhotoFileStore(path string) (*GalleryPhotoFileStore, error) {
	s := &GalleryPhotoFileStore{file: &jsonFile[model.GalleryPhoto]{path: path}}
	if err := s.file.init(); err != nil {
		return nil, fmt.Errorf("init gallery file: %w", err)
	}
	return s, nil
}

func (s *GalleryPhotoFileStore) List() ([]model.GalleryPhoto, error) {
	return s.file.list()
}

func (s *GalleryPhotoFileStore) GetByID(id string) (*model.GalleryPhoto, error) {
	photos, err := s.file.list()
	if err != nil {
		return nil, err
	}
	for i := range photos {
		if photos[i].ID == id {
			return &photos[i], nil
		}
	}
	return nil, nil
}

func (s *GalleryPhotoFileStore) CreateMany(photos []model.GalleryPhoto) error {
	if len(photos) == 0 {
		return nil
	}
	return s.file.mutate(func(existing []model.GalleryPhoto) ([]model.GalleryPhoto, bool, error) {
		return append(existing, photos...), true, nil
	})
}

func (s *GalleryPhotoFileStore) Delete(id string) (*model.GalleryPhoto, error) {
	var removed *model.GalleryPhoto
	err := s.file.mutate(func(photos []model.GalleryPhoto) ([]model.GalleryPhoto, bool, error) {
		for i := range photos {
			if photos[i].ID == id {
				p := photos[i]
				removed = &p
				return append(photos[:i], photos[i+1:]...), true, nil
			}
		}
		return nil, false, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
