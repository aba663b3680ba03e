package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/diarycrypt"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

// DiaryService stores client-encrypted diary entries. The server side of
// the diary never sees plaintext: entries arrive as ciphertext+nonce+salt
// and leave the same way.
//
// DecryptAll exists for the same-binary client path (the sync kit runs in
// the same process in tools and tests). It applies the drop-on-failure
// policy: an entry that fails to decrypt — wrong password, bit rot — is
// logged and skipped, and the rest of the diary still renders.
//
// Diary events are deliberately NOT published to the change-feed: the
// diary is single-user, single-device state and broadcasting even opaque
// ciphertext row changes would leak writing patterns.
type DiaryService struct {
	entries repository.DiaryRepository
	logger  *slog.Logger
}

func NewDiaryService(entries repository.DiaryRepository, logger *slog.Logger) *DiaryService {
	return &DiaryService{
		entries: entries,
		logger:  logger,
	}
}

// Create stores a sealed entry for the user.
func (s *DiaryService) Create(ctx context.Context, userID string, ciphertext, nonce, salt []byte) (*model.DiaryEntry, error) {
	if err := validateSealed(ciphertext, nonce, salt); err != nil {
		return nil, err
	}

	entry := &model.DiaryEntry{
		UserID:     userID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Salt:       salt,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		s.logger.Error("failed to create diary entry",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating diary entry: %w", err)
	}

	s.logger.Info("diary entry created", slog.String("id", entry.ID))
	return entry, nil
}

// Get returns one sealed entry, enforcing ownership.
func (s *DiaryService) Get(ctx context.Context, id, callerID string) (*model.DiaryEntry, error) {
	entry, err := s.ownedEntry(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns the user's sealed entries, newest first.
func (s *DiaryService) List(ctx context.Context, userID string) ([]model.DiaryEntry, error) {
	return s.entries.ListByUser(ctx, userID)
}

// Update replaces the sealed payload of an existing entry.
func (s *DiaryService) Update(ctx context.Context, id, callerID string, ciphertext, nonce, salt []byte) (*model.DiaryEntry, error) {
	if err := validateSealed(ciphertext, nonce, salt); err != nil {
		return nil, err
	}

	entry, err := s.ownedEntry(ctx, id, callerID)
	if err != nil {
		return nil, err
	}

	entry.Ciphertext = ciphertext
	entry.Nonce = nonce
	entry.Salt = salt
	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("updating diary entry: %w", err)
	}
	return entry, nil
}

// Delete removes an entry permanently.
func (s *DiaryService) Delete(ctx context.Context, id, callerID string) error {
	if _, err := s.ownedEntry(ctx, id, callerID); err != nil {
		return err
	}
	if err := s.entries.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("diary entry deleted", slog.String("id", id))
	return nil
}

// DecryptedEntry pairs an entry's metadata with its decrypted content.
type DecryptedEntry struct {
	Entry   model.DiaryEntry
	Content model.DiaryContent
}

// DecryptAll decrypts the user's diary with the given password. Entries
// that fail to decrypt are dropped, not fatal — one corrupt row or an
// entry sealed under an older password never takes down the whole page.
func (s *DiaryService) DecryptAll(ctx context.Context, userID string, password []byte) ([]DecryptedEntry, error) {
	entries, err := s.entries.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]DecryptedEntry, 0, len(entries))
	for _, entry := range entries {
		key := diarycrypt.DeriveKey(password, entry.Salt)

		var content model.DiaryContent
		if err := diarycrypt.DecryptEntry(entry.Ciphertext, entry.Nonce, key, &content); err != nil {
			s.logger.Warn("dropping undecryptable diary entry",
				slog.String("id", entry.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, DecryptedEntry{Entry: entry, Content: content})
	}
	return out, nil
}

func (s *DiaryService) ownedEntry(ctx context.Context, id, callerID string) (*model.DiaryEntry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "diary entry ID is required")
	}

	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.UserID != callerID {
		// NotFound, not Forbidden: don't confirm the entry exists to
		// anyone but its owner.
		return nil, apperror.NotFound("diary entry", id)
	}
	return entry, nil
}

func validateSealed(ciphertext, nonce, salt []byte) error {
	if len(ciphertext) == 0 {
		return apperror.ValidationFailed("ciphertext", "ciphertext is required")
	}
	if len(nonce) != 12 {
		return apperror.ValidationFailed("nonce", "nonce must be 12 bytes")
	}
	if len(salt) != diarycrypt.SaltSize {
		return apperror.ValidationFailed("salt",
			fmt.Sprintf("salt must be %d bytes", diarycrypt.SaltSize))
	}
	return nil
}
