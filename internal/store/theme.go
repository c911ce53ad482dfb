package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/heirloom/internal/model"
)

type ThemeStore struct {
	db *sql.DB
}

func NewThemeStore(db *sql.DB) *ThemeStore {
	return &ThemeStore{db: db}
}

// Questions returns the active prompts for a theme in display order.
func (s *ThemeStore) Questions(ctx context.Context, theme string) ([]model.ThemeQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, theme, question_text, order_index, active
		 FROM theme_questions
		 WHERE theme = ? AND active = 1
		 ORDER BY order_index ASC, id ASC`,
		theme,
	)
	if err != nil {
		return nil, fmt.Errorf("list theme questions: %w", err)
	}
	defer rows.Close()

	questions := []model.ThemeQuestion{}
	for rows.Next() {
		var q model.ThemeQuestion
		if err := rows.Scan(&q.ID, &q.Theme, &q.Text, &q.OrderIndex, &q.Active); err != nil {
			return nil, fmt.Errorf("scan theme question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
