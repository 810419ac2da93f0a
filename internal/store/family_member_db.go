package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/reunion/internal/model"
)

const memberColumns = "id, name, email, phone, city, relationship_type, connected_through, generation, family_branch, photo, attendees, created_at, updated_at"

// FamilyMemberDBStore keeps members in SQLite. List order is insertion order.
type FamilyMemberDBStore struct {
	db *sql.DB
}

func NewFamilyMemberDBStore(db *sql.DB) *FamilyMemberDBStore {
	return &FamilyMemberDBStore{db: db}
}

func (s *FamilyMemberDBStore) List() ([]model.FamilyMember, error) {
	rows, err := s.db.Query("SELECT " + memberColumns + " FROM family_members ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query family members: %w", err)
	}
	defer rows.Close()

	members := []model.FamilyMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *FamilyMemberDBStore) GetByID(id string) (*model.FamilyMember, error) {
	row := s.db.QueryRow("SELECT "+memberColumns+" FROM family_members WHERE id = ?", id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *FamilyMemberDBStore) Create(m *model.FamilyMember) error {
	_, err := s.db.Exec(
		"INSERT INTO family_members ("+memberColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.Name, m.Email, m.Phone, m.City, m.RelationshipType, m.ConnectedThrough,
		m.Generation, m.FamilyBranch, m.Photo, m.Attendees, formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert family member: %w", err)
	}
	return nil
}

func (s *FamilyMemberDBStore) Update(m *model.FamilyMember) error {
	result, err := s.db.Exec(
		`UPDATE family_members SET name = ?, email = ?, phone = ?, city = ?, relationship_type = ?,
		connected_through = ?, generation = ?, family_branch = ?, photo = ?, attendees = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.Email, m.Phone, m.City, m.RelationshipType, m.ConnectedThrough,
		m.Generation, m.FamilyBranch, m.Photo, m.Attendees, formatTime(m.UpdatedAt), m.ID,
	)
	if err != nil {
		return fmt.Errorf("update family member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("family member %s not found", m.ID)
	}
	return nil
}

func (s *FamilyMemberDBStore) Delete(id string) (*model.FamilyMember, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := scanMember(tx.QueryRow("SELECT "+memberColumns+" FROM family_members WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec("DELETE FROM family_members WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete family member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*model.FamilyMember, error) {
	var (
		m                    model.FamilyMember
		photo                sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.City, &m.RelationshipType, &m.ConnectedThrough,
		&m.Generation, &m.FamilyBranch, &photo, &m.Attendees, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan family member: %w", err)
	}
	if photo.Valid {
		m.Photo = &photo.String
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
