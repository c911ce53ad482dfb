package model

import "time"

type TreeSettings struct {
	FamilyID              int64     `json:"family_id"`
	Layout                string    `json:"layout"`
	ColorScheme           string    `json:"color_scheme"`
	ShowDates             bool      `json:"show_dates"`
	ShowPhotos            bool      `json:"show_photos"`
	ShowLivingOnly        bool      `json:"show_living_only"`
	RootPersonID          *int64    `json:"root_person_id"`
	SecondaryRootPersonID *int64    `json:"secondary_root_person_id"`
	UpdatedAt             time.Time `json:"updated_at"`
}
