package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/service"
)

// EmbedHandler serves the embeddable clip player: a minimal, self-contained
// HTML page designed to live inside an <iframe> on third-party sites.
//
// The page deliberately renders from its own template set (no base.html):
// the surrounding chrome of the app would be noise inside an iframe.
type EmbedHandler struct {
	clips    *service.ClipService
	template *template.Template
	logger   *slog.Logger
}

func NewEmbedHandler(clips *service.ClipService, templateDir string, logger *slog.Logger) (*EmbedHandler, error) {
	tmpl, err := template.ParseFiles(filepath.Join(templateDir, "embed.html"))
	if err != nil {
		return nil, err
	}

	return &EmbedHandler{
		clips:    clips,
		template: tmpl,
		logger:   logger,
	}, nil
}

// HandleEmbed serves the player page for one clip.
//
// HTTP: GET /embed/{clipID}
//
// FRAMING:
// Most of the app should never be framed (clickjacking), but this page
// exists to be framed. We don't send X-Frame-Options here, and the CSP
// explicitly allows any ancestor.
func (h *EmbedHandler) HandleEmbed(w http.ResponseWriter, r *http.Request) {
	clip, err := h.clips.GetByID(r.Context(), r.PathValue("clipID"))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			http.Error(w, "clip not found", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}

	// A hidden or deleted clip embeds nowhere.
	if !clip.IsVisible() {
		http.Error(w, "clip not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "frame-ancestors *")

	authorName := "anonymous"
	if clip.Author != nil {
		authorName = clip.Author.Name
	}

	if err := h.template.ExecuteTemplate(w, "embed", map[string]interface{}{
		"Clip":       clip,
		"AuthorName": authorName,
	}); err != nil {
		h.logger.Error("failed to render embed",
			slog.String("clipID", clip.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
