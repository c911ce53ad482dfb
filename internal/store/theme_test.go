package store

import (
	"context"
	"testing"

	"github.com/dukerupert/heirloom/internal/model"
)

func TestThemeQuestionsSeeded(t *testing.T) {
	ts := NewThemeStore(setupTestDB(t))
	ctx := context.Background()

	for _, theme := range model.Themes {
		qs, err := ts.Questions(ctx, theme.Key)
		if err != nil {
			t.Fatalf("questions %s: %v", theme.Key, err)
		}
		if len(qs) != 6 {
			t.Errorf("%s: %d questions, want 6", theme.Key, len(qs))
		}
		for i := 1; i < len(qs); i++ {
			if qs[i].OrderIndex < qs[i-1].OrderIndex {
				t.Errorf("%s: questions out of order at %d", theme.Key, i)
			}
		}
	}
}

func TestThemeQuestionsUnknownTheme(t *testing.T) {
	qs, err := NewThemeStore(setupTestDB(t)).Questions(context.Background(), "pirates")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 0 {
		t.Errorf("got %d questions, want 0", len(qs))
	}
}
