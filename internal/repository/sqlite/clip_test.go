package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

// TESTING WITH IN-MEMORY SQLITE:
// Using ":memory:" creates a fresh database that exists only during the test.
// Benefits:
// - Fast: no disk I/O
// - Isolated: each test gets its own database
// - Clean: automatically destroyed when the connection closes
//
// newTestDB is a "test helper" — a function used only in tests to reduce boilerplate.
// The `t.Helper()` call tells Go's test framework to report errors at the CALLER's
// line number, not inside this function. This makes test failure output much clearer.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	// t.Cleanup registers a function to run when the test finishes.
	// This is like defer, but scoped to the test — even works in subtests.
	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser creates a profile row. Clips join their author from the users
// table, so most clip tests need at least one.
func seedUser(t *testing.T, db *DB, handle string) *model.User {
	t.Helper()
	user := &model.User{Handle: handle, Name: handle}
	if err := NewUserRepo(db).Create(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user %s: %v", handle, err)
	}
	return user
}

// seedClip creates a clip with the given status and fails the test if it errors.
func seedClip(t *testing.T, db *DB, authorID string, status model.ClipStatus) *model.Clip {
	t.Helper()
	clip := &model.Clip{
		AuthorID: authorID,
		AudioURL: "https://cdn.example/clip.ogg",
		Mood:     "calm",
		Duration: 42,
		Status:   status,
	}
	if err := NewClipRepo(db).Create(context.Background(), clip); err != nil {
		t.Fatalf("failed to seed clip: %v", err)
	}
	return clip
}

// =========================================================================
// CREATE + GET TESTS
// =========================================================================

func TestClipCreate(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")

	clip := &model.Clip{
		AuthorID:   author.ID,
		AudioURL:   "https://cdn.example/hello.ogg",
		Mood:       "excited",
		Duration:   90,
		Transcript: "hello world",
		Status:     model.ClipStatusLive,
	}

	err := NewClipRepo(db).Create(context.Background(), clip)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Verify the clip was modified in-place (pointer receiver!)
	if clip.ID == "" {
		t.Error("Create() did not set clip.ID")
	}
	if clip.CreatedAt.IsZero() {
		t.Error("Create() did not set clip.CreatedAt")
	}
}

func TestClipGetByID_JoinsAuthor(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	created := seedClip(t, db, author.ID, model.ClipStatusLive)

	found, err := NewClipRepo(db).GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.Mood != "calm" {
		t.Errorf("Mood = %q, want %q", found.Mood, "calm")
	}
	if found.Author == nil {
		t.Fatal("GetByID() did not join the author profile")
	}
	if found.Author.Handle != "alice" {
		t.Errorf("Author.Handle = %q, want %q", found.Author.Handle, "alice")
	}
	// Reactions must come back as a usable map even when none were stored.
	if found.Reactions == nil {
		t.Error("Reactions should be an empty map, not nil")
	}
}

func TestClipGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := NewClipRepo(db).GetByID(context.Background(), "nonexistent-id")

	// Verify we get our custom NotFound error, not a raw sql.ErrNoRows
	if err == nil {
		t.Fatal("GetByID() should have returned an error for nonexistent ID")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// FEED TESTS
// =========================================================================

func TestClipListFeed_OnlyLiveTopLevel(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)

	live := seedClip(t, db, author.ID, model.ClipStatusLive)
	seedClip(t, db, author.ID, model.ClipStatusHidden)
	seedClip(t, db, author.ID, model.ClipStatusDraft)
	seedClip(t, db, author.ID, model.ClipStatusDeleted)

	// A live reply must not surface in the top-level feed either.
	reply := &model.Clip{AuthorID: author.ID, Status: model.ClipStatusLive, ParentID: live.ID}
	if err := repo.Create(context.Background(), reply); err != nil {
		t.Fatalf("creating reply: %v", err)
	}

	feed, err := repo.ListFeed(context.Background(), repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListFeed() error = %v", err)
	}

	if len(feed) != 1 {
		t.Fatalf("ListFeed() returned %d clips, want 1", len(feed))
	}
	if feed[0].ID != live.ID {
		t.Errorf("ListFeed() returned %s, want %s", feed[0].ID, live.ID)
	}
}

func TestClipListFeed_Pagination(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)

	for i := 0; i < 5; i++ {
		seedClip(t, db, author.ID, model.ClipStatusLive)
	}

	page1, err := repo.ListFeed(context.Background(), repository.ListOptions{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("ListFeed() page 1 error = %v", err)
	}
	if len(page1) != 2 {
		t.Errorf("Page 1: got %d items, want 2", len(page1))
	}

	page3, err := repo.ListFeed(context.Background(), repository.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListFeed() page 3 error = %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("Page 3: got %d items, want 1", len(page3))
	}
}

func TestClipListByAuthors(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")
	repo := NewClipRepo(db)

	fromAlice := seedClip(t, db, alice.ID, model.ClipStatusLive)
	seedClip(t, db, bob.ID, model.ClipStatusLive)
	seedClip(t, db, carol.ID, model.ClipStatusLive)

	clips, err := repo.ListByAuthors(context.Background(),
		[]string{alice.ID}, repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListByAuthors() error = %v", err)
	}

	if len(clips) != 1 {
		t.Fatalf("ListByAuthors() returned %d clips, want 1", len(clips))
	}
	if clips[0].ID != fromAlice.ID {
		t.Errorf("ListByAuthors() returned %s, want %s", clips[0].ID, fromAlice.ID)
	}
}

func TestClipListByAuthors_EmptySet(t *testing.T) {
	db := newTestDB(t)

	// An empty author set must short-circuit — `IN ()` is invalid SQL.
	clips, err := NewClipRepo(db).ListByAuthors(context.Background(),
		nil, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByAuthors() error = %v", err)
	}
	if len(clips) != 0 {
		t.Errorf("ListByAuthors() returned %d clips, want 0", len(clips))
	}
}

func TestClipListReplies(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)

	parent := seedClip(t, db, author.ID, model.ClipStatusLive)

	reply := &model.Clip{AuthorID: author.ID, Status: model.ClipStatusLive, ParentID: parent.ID}
	if err := repo.Create(context.Background(), reply); err != nil {
		t.Fatalf("creating reply: %v", err)
	}
	hiddenReply := &model.Clip{AuthorID: author.ID, Status: model.ClipStatusHidden, ParentID: parent.ID}
	if err := repo.Create(context.Background(), hiddenReply); err != nil {
		t.Fatalf("creating hidden reply: %v", err)
	}

	replies, err := repo.ListReplies(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("ListReplies() error = %v", err)
	}

	if len(replies) != 1 {
		t.Fatalf("ListReplies() returned %d, want 1 (hidden reply filtered)", len(replies))
	}
	if replies[0].ID != reply.ID {
		t.Errorf("ListReplies() returned %s, want %s", replies[0].ID, reply.ID)
	}
}

// =========================================================================
// STATUS + ANONYMIZE TESTS
// =========================================================================

func TestClipSetStatus(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)
	clip := seedClip(t, db, author.ID, model.ClipStatusLive)

	if err := repo.SetStatus(context.Background(), clip.ID, model.ClipStatusHidden); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	found, err := repo.GetByID(context.Background(), clip.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Status != model.ClipStatusHidden {
		t.Errorf("Status = %q, want %q", found.Status, model.ClipStatusHidden)
	}
}

func TestClipSetStatus_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := NewClipRepo(db).SetStatus(context.Background(), "nope", model.ClipStatusHidden)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetStatus() error = %v, want ErrNotFound", err)
	}
}

func TestClipListScheduledDue(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := &model.Clip{
		AuthorID: author.ID, AudioURL: "https://cdn.example/due.ogg",
		Duration: 30, Status: model.ClipStatusDraft, ScheduledAt: &past,
	}
	notYet := &model.Clip{
		AuthorID: author.ID, AudioURL: "https://cdn.example/later.ogg",
		Duration: 30, Status: model.ClipStatusDraft, ScheduledAt: &future,
	}
	for _, c := range []*model.Clip{due, notYet} {
		if err := repo.Create(context.Background(), c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	// An unscheduled draft must never come back, whatever the sweep time.
	seedClip(t, db, author.ID, model.ClipStatusDraft)

	found, err := repo.ListScheduledDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ListScheduledDue() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != due.ID {
		t.Errorf("ListScheduledDue() = %d clips, want only the past-due one", len(found))
	}
}

func TestClipAnonymize(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)
	clip := seedClip(t, db, author.ID, model.ClipStatusLive)

	if err := repo.Anonymize(context.Background(), clip.ID); err != nil {
		t.Fatalf("Anonymize() error = %v", err)
	}

	found, err := repo.GetByID(context.Background(), clip.ID)
	if err != nil {
		t.Fatalf("GetByID() after anonymize error = %v", err)
	}
	if found.AuthorID != "" {
		t.Errorf("AuthorID = %q, want empty", found.AuthorID)
	}
	if found.Author != nil {
		t.Error("Author should be nil after anonymize")
	}
	// The clip itself survives.
	if found.Status != model.ClipStatusLive {
		t.Errorf("Status = %q, want live", found.Status)
	}
}

// =========================================================================
// REACTION + LISTEN TESTS
// =========================================================================

func TestClipAddReaction(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)
	clip := seedClip(t, db, author.ID, model.ClipStatusLive)

	for i := 0; i < 3; i++ {
		if err := repo.AddReaction(context.Background(), clip.ID, "🔥"); err != nil {
			t.Fatalf("AddReaction() #%d error = %v", i, err)
		}
	}
	if err := repo.AddReaction(context.Background(), clip.ID, "👏"); err != nil {
		t.Fatalf("AddReaction() error = %v", err)
	}

	found, err := repo.GetByID(context.Background(), clip.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Reactions["🔥"] != 3 {
		t.Errorf("Reactions[🔥] = %d, want 3", found.Reactions["🔥"])
	}
	if found.Reactions["👏"] != 1 {
		t.Errorf("Reactions[👏] = %d, want 1", found.Reactions["👏"])
	}
}

func TestClipAddReaction_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := NewClipRepo(db).AddReaction(context.Background(), "nope", "🔥")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AddReaction() error = %v, want ErrNotFound", err)
	}
}

func TestClipIncrementListens(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	repo := NewClipRepo(db)
	clip := seedClip(t, db, author.ID, model.ClipStatusLive)

	if err := repo.IncrementListens(context.Background(), clip.ID); err != nil {
		t.Fatalf("IncrementListens() error = %v", err)
	}
	if err := repo.IncrementListens(context.Background(), clip.ID); err != nil {
		t.Fatalf("IncrementListens() error = %v", err)
	}

	found, err := repo.GetByID(context.Background(), clip.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.ListenCount != 2 {
		t.Errorf("ListenCount = %d, want 2", found.ListenCount)
	}
}

// =========================================================================
// SAVED CLIP TESTS
// =========================================================================

func TestClipSaveAndListSaved(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	saver := seedUser(t, db, "bob")
	repo := NewClipRepo(db)
	clip := seedClip(t, db, author.ID, model.ClipStatusLive)

	if err := repo.Save(context.Background(), saver.ID, clip.ID); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Saving twice is a no-op, not an error.
	if err := repo.Save(context.Background(), saver.ID, clip.ID); err != nil {
		t.Fatalf("Save() second call error = %v", err)
	}

	saved, err := repo.ListSaved(context.Background(), saver.ID)
	if err != nil {
		t.Fatalf("ListSaved() error = %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("ListSaved() returned %d, want 1", len(saved))
	}
	if saved[0].ID != clip.ID {
		t.Errorf("ListSaved() returned %s, want %s", saved[0].ID, clip.ID)
	}
}

func TestClipListSaved_DropsHidden(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	saver := seedUser(t, db, "bob")
	repo := NewClipRepo(db)
	clip := seedClip(t, db, author.ID, model.ClipStatusLive)

	if err := repo.Save(context.Background(), saver.ID, clip.ID); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Hide the clip after it was saved — it must drop out of the list,
	// same as it drops out of feeds.
	if err := repo.SetStatus(context.Background(), clip.ID, model.ClipStatusHidden); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	saved, err := repo.ListSaved(context.Background(), saver.ID)
	if err != nil {
		t.Fatalf("ListSaved() error = %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("ListSaved() returned %d, want 0 after hiding", len(saved))
	}
}

func TestClipUnsave(t *testing.T) {
	db := newTestDB(t)
	author := seedUser(t, db, "alice")
	saver := seedUser(t, db, "bob")
	repo := NewClipRepo(db)
	clip := seedClip(t, db, author.ID, model.ClipStatusLive)

	if err := repo.Save(context.Background(), saver.ID, clip.ID); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Unsave(context.Background(), saver.ID, clip.ID); err != nil {
		t.Fatalf("Unsave() error = %v", err)
	}

	saved, err := repo.ListSaved(context.Background(), saver.ID)
	if err != nil {
		t.Fatalf("ListSaved() error = %v", err)
	}
	if len(saved) != 0 {
		t.Errorf("ListSaved() returned %d, want 0 after unsave", len(saved))
	}
}
