package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
)

// PageHandler serves the static informational pages: the FAQ and the DMCA
// takedown policy.
//
// WHY A STRUCT?
// By using a struct, we can:
// 1. Parse templates once at startup (expensive) and reuse them (cheap)
// 2. Inject dependencies (logger, config) without global variables
// 3. Group related handlers together
type PageHandler struct {
	faq    *template.Template
	dmca   *template.Template
	logger *slog.Logger
}

// NewPageHandler parses the page templates.
//
// TEMPLATE PARSING:
// template.ParseFiles() reads HTML files and compiles them into an internal
// tree structure. Each page gets its OWN set of base.html + its body:
//   - base.html defines the overall page structure with {{template "content" .}}
//   - faq.html / dmca.html each define {{define "content"}}...{{end}}
//
// Both pages defining "content" is why they cannot share one set — in a
// single set the second definition would silently replace the first.
func NewPageHandler(templateDir string, logger *slog.Logger) (*PageHandler, error) {
	base := filepath.Join(templateDir, "base.html")

	faq, err := template.ParseFiles(base, filepath.Join(templateDir, "faq.html"))
	if err != nil {
		return nil, err
	}
	dmca, err := template.ParseFiles(base, filepath.Join(templateDir, "dmca.html"))
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		faq:    faq,
		dmca:   dmca,
		logger: logger,
	}, nil
}

// HandleFAQ serves the FAQ page.
//
// HTTP: GET /faq
func (h *PageHandler) HandleFAQ(w http.ResponseWriter, r *http.Request) {
	h.render(w, h.faq, map[string]interface{}{
		"Title": "FAQ — Waveroom",
	})
}

// HandleDMCA serves the DMCA takedown policy page.
//
// HTTP: GET /dmca
func (h *PageHandler) HandleDMCA(w http.ResponseWriter, r *http.Request) {
	h.render(w, h.dmca, map[string]interface{}{
		"Title": "DMCA Policy — Waveroom",
	})
}

func (h *PageHandler) render(w http.ResponseWriter, tmpl *template.Template, data map[string]interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
