// Package family derives aggregate counts and tree structure from the
// member list. Everything here is a pure function over a slice.
package family

import "github.com/dukerupert/reunion/internal/model"

const unknownBranch = "Unknown"

type Stats struct {
	TotalMembers   int            `json:"totalMembers"`
	TotalAttendees int            `json:"totalAttendees"`
	ByGeneration   map[int]int    `json:"byGeneration"`
	ByBranch       map[string]int `json:"byBranch"`
}

// ComputeStats counts members, sums attendees and tallies members per
// generation and per branch. Members without a branch count as "Unknown".
func ComputeStats(members []model.FamilyMember) Stats {
	s := Stats{
		TotalMembers: len(members),
		ByGeneration: make(map[int]int),
		ByBranch:     make(map[string]int),
	}
	for _, m := range members {
		s.TotalAttendees += m.Attendees
		s.ByGeneration[m.Generation]++

		branch := m.FamilyBranch
		if branch == "" {
			branch = unknownBranch
		}
		s.ByBranch[branch]++
	}
	return s
}
