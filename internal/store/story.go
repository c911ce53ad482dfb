package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukerupert/heirloom/internal/database"
	"github.com/dukerupert/heirloom/internal/model"
)

type StoryStore struct {
	db *sql.DB
}

func NewStoryStore(db *sql.DB) *StoryStore {
	return &StoryStore{db: db}
}

func scanStory(s scanner) (*model.Story, error) {
	var (
		st        model.Story
		authorID  sql.NullInt64
		year      sql.NullInt64
		qa        string
		updatedBy sql.NullInt64
	)
	err := s.Scan(&st.ID, &st.FamilyID, &st.PersonID, &st.AuthorName, &authorID, &st.Title,
		&st.Theme, &st.TimePeriod, &year, &qa, &st.StoryText, &st.PhotoFilename, &st.HasPhoto,
		&st.Featured, &updatedBy, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	st.AuthorID = int64Ptr(authorID)
	st.Year = intPtr(year)
	st.UpdatedBy = int64Ptr(updatedBy)
	st.QuestionsAndAnswers = []model.QuestionAnswer{}
	if qa != "" {
		if err := json.Unmarshal([]byte(qa), &st.QuestionsAndAnswers); err != nil {
			return nil, fmt.Errorf("decode questions and answers: %w", err)
		}
	}
	return &st, nil
}

const storyCols = `id, family_id, person_id, author_name, author_id, title,
	theme, time_period, year, questions_and_answers, story_text, photo_filename,
	(COALESCE(length(photo_data), 0) > 0 OR photo_key != ''),
	featured, updated_by, created_at, updated_at`

func encodeQA(qa []model.QuestionAnswer) (string, error) {
	if qa == nil {
		qa = []model.QuestionAnswer{}
	}
	b, err := json.Marshal(qa)
	if err != nil {
		return "", fmt.Errorf("encode questions and answers: %w", err)
	}
	return string(b), nil
}

func nullYear(y *int) sql.NullInt64 {
	if y == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*y), Valid: true}
}

// Create saves a story about personID. The person must belong to the
// family, otherwise ErrNotFound is returned.
func (s *StoryStore) Create(ctx context.Context, familyID, personID int64, in model.StoryInput, photo *model.StoredPhoto, authorID int64) (*model.Story, error) {
	ok, err := personInFamily(ctx, s.db, familyID, personID)
	if err != nil {
		return nil, fmt.Errorf("check person: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	qa, err := encodeQA(in.QuestionsAndAnswers)
	if err != nil {
		return nil, err
	}
	var filename, key string
	var data []byte
	if photo != nil {
		filename, data, key = photo.Filename, photo.Data, photo.Key
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (family_id, person_id, author_name, author_id, title, theme,
			time_period, year, questions_and_answers, story_text,
			photo_filename, photo_data, photo_key, featured, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, personID, in.AuthorName, nullID(authorID), in.Title, in.Theme,
		in.TimePeriod, nullYear(in.Year), qa, in.StoryText,
		filename, blob(data), key, in.Featured, nullID(authorID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert story: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *StoryStore) GetByID(ctx context.Context, id int64) (*model.Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyCols+` FROM stories WHERE id = ?`, id)
	st, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	return st, nil
}

// ListByFamily returns the family's stories, featured first, then oldest
// first.
func (s *StoryStore) ListByFamily(ctx context.Context, familyID int64, filter model.StoryFilter) ([]model.Story, error) {
	where := []string{"family_id = ?"}
	args := []any{familyID}
	if filter.PersonID != 0 {
		where = append(where, "person_id = ?")
		args = append(args, filter.PersonID)
	}
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storyCols+` FROM stories
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY featured DESC, created_at ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	stories := []model.Story{}
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, *st)
	}
	return stories, rows.Err()
}

// YearCounts returns how many of the family's stories fall in each year.
// Stories without a year are not counted.
func (s *StoryStore) YearCounts(ctx context.Context, familyID int64) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, COUNT(*) FROM stories
		 WHERE family_id = ? AND year IS NOT NULL
		 GROUP BY year`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("count story years: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var year, n int
		if err := rows.Scan(&year, &n); err != nil {
			return nil, fmt.Errorf("scan story year: %w", err)
		}
		counts[year] = n
	}
	return counts, rows.Err()
}

// Update overwrites the editable fields of a story and applies the photo
// change, returning the object key of a replaced or removed photo.
func (s *StoryStore) Update(ctx context.Context, id int64, in model.StoryInput, photo PhotoUpdate, userID int64) (*model.Story, string, error) {
	qa, err := encodeQA(in.QuestionsAndAnswers)
	if err != nil {
		return nil, "", err
	}
	var oldKey string
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT photo_key FROM stories WHERE id = ?`, id).Scan(&oldKey)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get story photo key: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE stories SET author_name = ?, title = ?, theme = ?, time_period = ?, year = ?,
				questions_and_answers = ?, story_text = ?, featured = ?, updated_by = ?, updated_at = ?
			 WHERE id = ?`,
			in.AuthorName, in.Title, in.Theme, in.TimePeriod, nullYear(in.Year),
			qa, in.StoryText, in.Featured, nullID(userID), nowUTC(), id,
		)
		if err != nil {
			return fmt.Errorf("update story: %w", err)
		}
		if !photo.changes() {
			oldKey = ""
			return nil
		}
		return setPhoto(ctx, tx, "stories", id, photo)
	})
	if err != nil {
		return nil, "", err
	}
	st, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return st, oldKey, nil
}

// Delete removes a story and returns the object key of its photo, if any.
func (s *StoryStore) Delete(ctx context.Context, id int64) (string, error) {
	var key string
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT photo_key FROM stories WHERE id = ?`, id).Scan(&key)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get story photo key: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete story: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// ToggleFeatured flips the featured flag of a story.
func (s *StoryStore) ToggleFeatured(ctx context.Context, id int64, userID int64) (*model.Story, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE stories SET featured = 1 - featured, updated_by = ?, updated_at = ? WHERE id = ?`,
		nullID(userID), nowUTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle featured: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// GetPhoto returns the stored photo of a story, or nil if there is none.
func (s *StoryStore) GetPhoto(ctx context.Context, id int64) (*model.StoredPhoto, error) {
	return getPhoto(ctx, s.db, "stories", id)
}
