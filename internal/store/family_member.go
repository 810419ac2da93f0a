package store

import (
	"fmt"

	"github.com/dukerupert/reunion/internal/model"
)

// FamilyMemberFileStore keeps members in a JSON array file.
type FamilyMemberFileStore struct {
	file *jsonFile[model.FamilyMember]
}

// NewFamilyMemberFileStore opens the file at path, creating it with an empty
// array when needed.
func NewFamilyMemberFileStore(path string) (*FamilyMemberFileStore, error) {
	s := &FamilyMemberFileStore{file: &jsonFile[model.FamilyMember]{path: path}}
	if err := s.file.init(); err != nil {
		return nil, fmt.Errorf("init family member file: %w", err)
	}
	return s, nil
}

func (s *FamilyMemberFileStore) List() ([]model.FamilyMember, error) {
	return s.file.list()
}

func (s *FamilyMemberFileStore) GetByID(id string) (*model.FamilyMember, error) {
	members, err := s.file.list()
	if err != nil {
		return nil, err
	}
	for i := range members {
		if members[i].ID == id {
			return &members[i], nil
		}
	}
	return nil, nil
}

func (s *FamilyMemberFileStore) Create(m *model.FamilyMember) error {
	return s.file.mutate(func(members []model.FamilyMember) ([]model.FamilyMember, bool, error) {
		for _, existing := range members {
			if existing.ID == m.ID {
				return nil, false, fmt.Errorf("family member %s already exists", m.ID)
			}
		}
		return append(members, *m), true, nil
	})
}

func (s *FamilyMemberFileStore) Update(m *model.FamilyMember) error {
	return s.file.mutate(func(members []model.FamilyMember) ([]model.FamilyMember, bool, error) {
		for i := range members {
			if members[i].ID == m.ID {
				members[i] = *m
				return members, true, nil
			}
		}
		return nil, false, fmt.Errorf("family member %s not found", m.ID)
	})
}

func (s *FamilyMemberFileStore) Delete(id string) (*model.FamilyMember, error) {
	var removed *model.FamilyMember
	err := s.file.mutate(func(members []model.FamilyMember) ([]model.FamilyMember, bool, error) {
		for i := range members {
			if members[i].ID == id {
				m := members[i]
				removed = &m
				return append(members[:i], members[i+1:]...), true, nil
			}
		}
		return nil, false, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
