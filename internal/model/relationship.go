package model

import "time"

type RelationshipType string

const (
	RelParent        RelationshipType = "parent"
	RelChild         RelationshipType = "child"
	RelSpouse        RelationshipType = "spouse"
	RelSibling       RelationshipType = "sibling"
	RelAdoptedParent RelationshipType = "adopted_parent"
	RelAdoptedChild  RelationshipType = "adopted_child"
	RelStepParent    RelationshipType = "step_parent"
	RelStepChild     RelationshipType = "step_child"
)

// Relationship is a directed edge person1 -> person2. A parent edge reads
// "person1 is the parent of person2".
type Relationship struct {
	ID           int64            `json:"id"`
	FamilyID     int64            `json:"family_id"`
	Person1ID    int64            `json:"person1_id"`
	Person2ID    int64            `json:"person2_id"`
	Type         RelationshipType `json:"relationship_type"`
	MarriageDate string           `json:"marriage_date"`
	DivorceDate  string           `json:"divorce_date"`
	Active       bool             `json:"active"`
	CreatedBy    *int64           `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
}

// RelationshipMeta is the optional metadata copied onto both directions.
type RelationshipMeta struct {
	MarriageDate string
	DivorceDate  string
	CreatedBy    *int64
}
