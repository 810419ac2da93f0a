package store

import "github.com/dukerupert/reunion/internal/model"

// FamilyMembers persists member records in insertion order. Lookups return
// (nil, nil) when the id is unknown.
type FamilyMembers interface {
	List() ([]model.FamilyMember, error)
	GetByID(id string) (*model.FamilyMember, error)
	Create(m *model.FamilyMember) error
	Update(m *model.FamilyMember) error
	// Delete removes the record and returns it, or nil if it did not exist.
	Delete(id string) (*model.FamilyMember, error)
}

// GalleryPhotos persists gallery photo records in insertion order.
type GalleryPhotos interface {
	List() ([]model.GalleryPhoto, error)
	GetByID(id string) (*model.GalleryPhoto, error)
	CreateMany(photos []model.GalleryPhoto) error
	Delete(id string) (*model.GalleryPhoto, error)
}
