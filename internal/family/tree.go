package family

import (
	"sort"

	"github.com/dukerupert/reunion/internal/model"
)

// Edge links a parent to a child. Names are carried so clients can render
// labels without a second lookup.
type Edge struct {
	ParentID   string `json:"parentId"`
	ParentName string `json:"parentName"`
	ChildID    string `json:"childId"`
	ChildName  string `json:"childName"`
}

// Generation is one band of the tree view.
type Generation struct {
	Generation int      `json:"generation"`
	MemberIDs  []string `json:"memberIds"`
}

// BuildTree joins each member's ConnectedThrough against member names. The
// first member in list order with an exactly equal name becomes the parent.
// Unmatched names produce no edge. Self references and cycles are returned
// as found.
func BuildTree(members []model.FamilyMember) []Edge {
	byName := make(map[string]int, len(members))
	for i, m := range members {
		if _, ok := byName[m.Name]; !ok {
			byName[m.Name] = i
		}
	}

	edges := []Edge{}
	for _, child := range members {
		if child.ConnectedThrough == "" {
			continue
		}
		i, ok := byName[child.ConnectedThrough]
		if !ok {
			continue
		}
		parent := members[i]
		edges = append(edges, Edge{
			ParentID:   parent.ID,
			ParentName: parent.Name,
			ChildID:    child.ID,
			ChildName:  child.Name,
		})
	}
	return edges
}

// GroupByGeneration partitions members by generation, ascending. Member
// order within a band follows list order.
func GroupByGeneration(members []model.FamilyMember) []Generation {
	bands := make(map[int][]string)
	for _, m := range members {
		bands[m.Generation] = append(bands[m.Generation], m.ID)
	}

	out := make([]Generation, 0, len(bands))
	for g, ids := range bands {
		out = append(out, Generation{Generation: g, MemberIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out
}
