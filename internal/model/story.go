package model

import "time"

type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Story struct {
	ID                  int64            `json:"id"`
	FamilyID            int64            `json:"family_id"`
	PersonID            int64            `json:"person_id"`
	AuthorName          string           `json:"author_name"`
	AuthorID            *int64           `json:"author_id"`
	Title               string           `json:"title"`
	Theme               string           `json:"theme"`
	TimePeriod          string           `json:"time_period"`
	Year                *int             `json:"year"`
	QuestionsAndAnswers []QuestionAnswer `json:"questions_and_answers"`
	StoryText           string           `json:"story_text"`
	PhotoFilename       string           `json:"photo_filename"`
	HasPhoto            bool             `json:"has_photo"`
	Featured            bool             `json:"featured"`
	UpdatedBy           *int64           `json:"updated_by"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// StoryInput carries the editable fields of a story.
type StoryInput struct {
	AuthorName          string
	Title               string
	Theme               string
	TimePeriod          string
	Year                *int
	QuestionsAndAnswers []QuestionAnswer
	StoryText           string
	Featured            bool
}

// StoryFilter narrows a family's story list. Zero values mean no filter.
type StoryFilter struct {
	PersonID int64
	Year     int
}

// Themes lists the story themes with their display names, in display order.
var Themes = []Theme{
	{Key: "career", Name: "Career"},
	{Key: "challenges", Name: "Challenges & Growth"},
	{Key: "childhood", Name: "Childhood"},
	{Key: "everyday", Name: "Everyday Life"},
	{Key: "family", Name: "Family"},
	{Key: "general", Name: "General Memory"},
	{Key: "milestones", Name: "Milestones"},
	{Key: "relationships", Name: "Relationships"},
	{Key: "travel", Name: "Travel & Adventures"},
}

type Theme struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ValidTheme reports whether key is a known story theme.
func ValidTheme(key string) bool {
	for _, t := range Themes {
		if t.Key == key {
			return true
		}
	}
	return false
}

// ThemeName returns the display name for key, or key itself if unknown.
func ThemeName(key string) string {
	for _, t := range Themes {
		if t.Key == key {
			return t.Name
		}
	}
	return key
}

type ThemeQuestion struct {
	ID         int64  `json:"id"`
	Theme      string `json:"theme"`
	Text       string `json:"text"`
	OrderIndex int    `json:"order"`
	Active     bool   `json:"-"`
}
