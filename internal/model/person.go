package model

import "time"

type Person struct {
	ID              int64     `json:"id"`
	FamilyID        int64     `json:"family_id"`
	FirstName       string    `json:"first_name"`
	MiddleName      string    `json:"middle_name"`
	LastName        string    `json:"last_name"`
	MaidenName      string    `json:"maiden_name"`
	Gender          string    `json:"gender"`
	BirthDate       string    `json:"birth_date"`
	DeathDate       string    `json:"death_date"`
	BirthPlace      string    `json:"birth_place"`
	DeathPlace      string    `json:"death_place"`
	IsLiving        bool      `json:"is_living"`
	Bio             string    `json:"bio"`
	PhotoFilename   string    `json:"photo_filename"`
	HasPhoto        bool      `json:"has_photo"`
	PositionX       int       `json:"position_x"`
	PositionY       int       `json:"position_y"`
	GenerationLevel *int      `json:"generation_level"`
	CreatedBy       *int64    `json:"created_by"`
	UpdatedBy       *int64    `json:"updated_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PersonInput carries the editable fields of a person.
type PersonInput struct {
	FirstName  string
	MiddleName string
	LastName   string
	MaidenName string
	Gender     string
	BirthDate  string
	DeathDate  string
	BirthPlace string
	DeathPlace string
	IsLiving   bool
	Bio        string
	PositionX  int
	PositionY  int
}

// StoredPhoto is what the database holds for a photo: inline bytes or an
// object-store key, never both.
type StoredPhoto struct {
	Filename string
	Data     []byte
	Key      string
}

// DeleteResult reports what a person delete cascaded to.
type DeleteResult struct {
	StoriesDeleted       int64    `json:"stories_deleted"`
	RelationshipsDeleted int64    `json:"relationships_deleted"`
	PhotoKeys            []string `json:"-"`
}
