// Package genealogy holds the relationship vocabulary and the generation
// level computation for a family graph.
package genealogy

import (
	"sort"

	"github.com/dukerupert/heirloom/internal/model"
)

var reciprocals = map[model.RelationshipType]model.RelationshipType{
	model.RelParent:        model.RelChild,
	model.RelChild:         model.RelParent,
	model.RelSpouse:        model.RelSpouse,
	model.RelSibling:       model.RelSibling,
	model.RelAdoptedParent: model.RelAdoptedChild,
	model.RelAdoptedChild:  model.RelAdoptedParent,
	model.RelStepParent:    model.RelStepChild,
	model.RelStepChild:     model.RelStepParent,
}

// Types lists the relationship vocabulary.
var Types = []model.RelationshipType{
	model.RelParent, model.RelChild, model.RelSpouse, model.RelSibling,
	model.RelAdoptedParent, model.RelAdoptedChild, model.RelStepParent, model.RelStepChild,
}

func ValidType(t model.RelationshipType) bool {
	_, ok := reciprocals[t]
	return ok
}

// Reciprocal returns the type of the mirror edge person2 -> person1.
func Reciprocal(t model.RelationshipType) (model.RelationshipType, bool) {
	r, ok := reciprocals[t]
	return r, ok
}

// IsParentType reports whether person1 is an ancestor of person2 one
// generation up.
func IsParentType(t model.RelationshipType) bool {
	return t == model.RelParent || t == model.RelAdoptedParent || t == model.RelStepParent
}

func IsChildType(t model.RelationshipType) bool {
	return t == model.RelChild || t == model.RelAdoptedChild || t == model.RelStepChild
}

// levelDelta is the generation change when crossing an edge of type t
// from person1 to person2.
func levelDelta(t model.RelationshipType) int {
	switch {
	case IsParentType(t):
		return 1
	case IsChildType(t):
		return -1
	default:
		return 0
	}
}

type hop struct {
	to    int64
	delta int
}

// ComputeGenerations assigns a generation level to every person reachable
// from the root couple: both endpoints of the lowest-id spouse edge sit at
// level 0. Levels spread breadth-first, so a person's level is settled by
// the shortest path from the root and a parent's level is always final
// before its children are visited. Without a spouse edge the result is
// empty. People not reachable from the root are absent from the result.
func ComputeGenerations(edges []model.Relationship) map[int64]int {
	sorted := make([]model.Relationship, 0, len(edges))
	for _, e := range edges {
		if e.Active {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var root *model.Relationship
	adj := make(map[int64][]hop)
	for i, e := range sorted {
		if e.Type == model.RelSpouse && root == nil {
			root = &sorted[i]
		}
		d := levelDelta(e.Type)
		adj[e.Person1ID] = append(adj[e.Person1ID], hop{to: e.Person2ID, delta: d})
		adj[e.Person2ID] = append(adj[e.Person2ID], hop{to: e.Person1ID, delta: -d})
	}

	levels := make(map[int64]int)
	if root == nil {
		return levels
	}

	levels[root.Person1ID] = 0
	levels[root.Person2ID] = 0
	queue := []int64{root.Person1ID, root.Person2ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, h := range adj[cur] {
			if _, seen := levels[h.to]; seen {
				continue
			}
			levels[h.to] = levels[cur] + h.delta
			queue = append(queue, h.to)
		}
	}
	return levels
}
