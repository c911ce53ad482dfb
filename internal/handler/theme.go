package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/store"
)

// ThemeHandler serves the story themes and their prompt questions. Both
// are reference data and need no session.
type ThemeHandler struct {
	themeStore *store.ThemeStore
	logger     *slog.Logger
}

func NewThemeHandler(ts *store.ThemeStore, logger *slog.Logger) *ThemeHandler {
	return &ThemeHandler{themeStore: ts, logger: logger}
}

func (h *ThemeHandler) List(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, envelope{"themes": model.Themes})
}

func (h *ThemeHandler) Questions(w http.ResponseWriter, r *http.Request) {
	theme := r.PathValue("theme")
	if !model.ValidTheme(theme) {
		writeError(w, http.StatusNotFound, "unknown theme")
		return
	}

	questions, err := h.themeStore.Questions(r.Context(), theme)
	if err != nil {
		h.logger.Error("list theme questions", "theme", theme, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list questions")
		return
	}
	if questions == nil {
		questions = []model.ThemeQuestion{}
	}
	writeSuccess(w, http.StatusOK, envelope{
		"theme":     theme,
		"name":      model.ThemeName(theme),
		"questions": questions,
	})
}
