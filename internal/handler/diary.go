package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/service"
)

// DiaryHandler exposes the encrypted diary API.
//
// Payloads cross this boundary sealed: ciphertext, nonce, and salt arrive
// base64-encoded in JSON (encoding/json handles []byte that way natively)
// and are stored exactly as received. No endpoint here can read an entry.
type DiaryHandler struct {
	diary  *service.DiaryService
	logger *slog.Logger
}

func NewDiaryHandler(diary *service.DiaryService, logger *slog.Logger) *DiaryHandler {
	return &DiaryHandler{diary: diary, logger: logger}
}

// sealedEntryRequest is the JSON body of diary create/update calls.
type sealedEntryRequest struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Salt       []byte `json:"salt"`
}

// HandleCreate stores a sealed entry for the caller.
//
// HTTP: POST /api/diary
// Auth: Required
func (h *DiaryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req sealedEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.diary.Create(r.Context(), userID, req.Ciphertext, req.Nonce, req.Salt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleList returns the caller's sealed entries, newest first.
//
// HTTP: GET /api/diary
// Auth: Required
func (h *DiaryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	entries, err := h.diary.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGet returns one sealed entry.
//
// HTTP: GET /api/diary/{id}
// Auth: Required
func (h *DiaryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	entry, err := h.diary.Get(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleUpdate replaces an entry's sealed payload.
//
// HTTP: PUT /api/diary/{id}
// Auth: Required
func (h *DiaryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req sealedEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.diary.Update(r.Context(), r.PathValue("id"), userID, req.Ciphertext, req.Nonce, req.Salt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleDelete removes an entry permanently.
//
// HTTP: DELETE /api/diary/{id}
// Auth: Required
func (h *DiaryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.diary.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
