package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
)

// =========================================================================
// MOCK PLAYLIST REPOSITORY
// =========================================================================

type mockPlaylistRepo struct {
	playlists map[string]*model.Playlist
	entries   map[string][]*model.PlaylistClip  // playlistID -> ordered entries
	collabs   map[string][]*model.Collaborator  // playlistID -> roster
	nextID    int
}

func newMockPlaylistRepo() *mockPlaylistRepo {
	return &mockPlaylistRepo{
		playlists: make(map[string]*model.Playlist),
		entries:   make(map[string][]*model.PlaylistClip),
		collabs:   make(map[string][]*model.Collaborator),
	}
}

func (m *mockPlaylistRepo) Create(_ context.Context, playlist *model.Playlist) error {
	m.nextID++
	playlist.ID = fmt.Sprintf("pl-%d", m.nextID)
	playlist.CreatedAt = time.Now()
	stored := *playlist
	m.playlists[playlist.ID] = &stored
	m.collabs[playlist.ID] = []*model.Collaborator{{
		PlaylistID: playlist.ID,
		UserID:     playlist.OwnerID,
		Role:       model.RoleOwner,
	}}
	return nil
}

// compose fills the joined relations the way the SQL layer does.
func (m *mockPlaylistRepo) compose(p *model.Playlist) *model.Playlist {
	result := *p
	for _, e := range m.entries[p.ID] {
		result.Clips = append(result.Clips, *e)
	}
	for _, c := range m.collabs[p.ID] {
		result.Collaborators = append(result.Collaborators, *c)
	}
	return &result
}

func (m *mockPlaylistRepo) GetByID(_ context.Context, id string) (*model.Playlist, error) {
	p, ok := m.playlists[id]
	if !ok {
		return nil, apperror.NotFound("playlist", id)
	}
	return m.compose(p), nil
}

func (m *mockPlaylistRepo) GetByShareToken(_ context.Context, token string) (*model.Playlist, error) {
	for _, p := range m.playlists {
		if p.ShareToken == token && token != "" {
			return m.compose(p), nil
		}
	}
	return nil, apperror.NotFound("playlist", token)
}

func (m *mockPlaylistRepo) Update(_ context.Context, playlist *model.Playlist) error {
	if _, ok := m.playlists[playlist.ID]; !ok {
		return apperror.NotFound("playlist", playlist.ID)
	}
	stored := *playlist
	stored.Clips = nil
	stored.Collaborators = nil
	m.playlists[playlist.ID] = &stored
	return nil
}

func (m *mockPlaylistRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.playlists[id]; !ok {
		return apperror.NotFound("playlist", id)
	}
	delete(m.playlists, id)
	delete(m.entries, id)
	delete(m.collabs, id)
	return nil
}

func (m *mockPlaylistRepo) ListByUser(_ context.Context, userID string) ([]model.Playlist, error) {
	result := make([]model.Playlist, 0)
	for id, roster := range m.collabs {
		for _, c := range roster {
			if c.UserID == userID {
				result = append(result, *m.playlists[id])
				break
			}
		}
	}
	return result, nil
}

func (m *mockPlaylistRepo) AddClip(_ context.Context, entry *model.PlaylistClip) error {
	m.nextID++
	entry.ID = fmt.Sprintf("entry-%d", m.nextID)
	entry.Position = len(m.entries[entry.PlaylistID])
	stored := *entry
	m.entries[entry.PlaylistID] = append(m.entries[entry.PlaylistID], &stored)
	return nil
}

func (m *mockPlaylistRepo) GetEntry(_ context.Context, entryID string) (*model.PlaylistClip, error) {
	for _, list := range m.entries {
		for _, e := range list {
			if e.ID == entryID {
				result := *e
				return &result, nil
			}
		}
	}
	return nil, apperror.NotFound("playlist entry", entryID)
}

func (m *mockPlaylistRepo) RemoveClip(_ context.Context, playlistID, clipID string) error {
	list := m.entries[playlistID]
	for i, e := range list {
		if e.ClipID == clipID {
			list = append(list[:i], list[i+1:]...)
			for pos, rest := range list {
				rest.Position = pos // compact
			}
			m.entries[playlistID] = list
			return nil
		}
	}
	return apperror.NotFound("playlist entry", clipID)
}

func (m *mockPlaylistRepo) Reorder(_ context.Context, playlistID string, orderedClipIDs []string) error {
	byClip := make(map[string]*model.PlaylistClip)
	for _, e := range m.entries[playlistID] {
		byClip[e.ClipID] = e
	}
	reordered := make([]*model.PlaylistClip, 0, len(orderedClipIDs))
	for pos, clipID := range orderedClipIDs {
		e, ok := byClip[clipID]
		if !ok {
			return apperror.NotFound("playlist entry", clipID)
		}
		e.Position = pos
		reordered = append(reordered, e)
	}
	m.entries[playlistID] = reordered
	return nil
}

func (m *mockPlaylistRepo) Collaborators(_ context.Context, playlistID string) ([]model.Collaborator, error) {
	result := make([]model.Collaborator, 0)
	for _, c := range m.collabs[playlistID] {
		result = append(result, *c)
	}
	return result, nil
}

func (m *mockPlaylistRepo) AddCollaborator(_ context.Context, c *model.Collaborator) error {
	for _, existing := range m.collabs[c.PlaylistID] {
		if existing.UserID == c.UserID {
			return nil
		}
	}
	stored := *c
	m.collabs[c.PlaylistID] = append(m.collabs[c.PlaylistID], &stored)
	return nil
}

func (m *mockPlaylistRepo) RemoveCollaborator(_ context.Context, playlistID, userID string) error {
	roster := m.collabs[playlistID]
	for i, c := range roster {
		if c.UserID == userID {
			m.collabs[playlistID] = append(roster[:i], roster[i+1:]...)
			return nil
		}
	}
	return nil
}

// =========================================================================
// TEST SETUP
// =========================================================================

func newTestPlaylistService(t *testing.T) (*PlaylistService, *mockPlaylistRepo, *mockClipRepo) {
	t.Helper()
	playlists := newMockPlaylistRepo()
	clips := newMockClipRepo()
	hub := realtime.NewHub(testLogger())
	svc := NewPlaylistService(playlists, clips, hub, testLogger())
	return svc, playlists, clips
}

func seedClip(t *testing.T, clips *mockClipRepo, status model.ClipStatus) *model.Clip {
	t.Helper()
	clip := &model.Clip{
		AuthorID: "user-1",
		AudioURL: "https://cdn.example/a.ogg",
		Duration: 30,
		Status:   status,
	}
	if err := clips.Create(context.Background(), clip); err != nil {
		t.Fatalf("setup: seeding clip: %v", err)
	}
	return clip
}

// =========================================================================
// CREATE / LOOKUP TESTS
// =========================================================================

func TestPlaylistCreate(t *testing.T) {
	svc, repo, _ := newTestPlaylistService(t)

	playlist, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	roster := repo.collabs[playlist.ID]
	if len(roster) != 1 || roster[0].Role != model.RoleOwner {
		t.Error("creating a playlist should enroll the owner as a collaborator")
	}
}

func TestPlaylistCreate_EmptyName(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	_, err := svc.Create(context.Background(), "user-1", "   ", false)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestPlaylistGet_ByID(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	got, err := svc.Get(context.Background(), created.ID, "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("Get() = %q, want %q", got.ID, created.ID)
	}
}

func TestPlaylistGet_PrivateHiddenFromOutsiders(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if err := svc.AddCollaborator(context.Background(), created.ID, "user-1", "user-2"); err != nil {
		t.Fatalf("setup: AddCollaborator() error = %v", err)
	}

	// Holding the id is not enough: strangers and anonymous callers get
	// NotFound, never confirmation that the playlist exists.
	for _, caller := range []string{"stranger", ""} {
		if _, err := svc.Get(context.Background(), created.ID, caller); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("Get(caller=%q) error = %v, want ErrNotFound", caller, err)
		}
	}

	if _, err := svc.Get(context.Background(), created.ID, "user-2"); err != nil {
		t.Errorf("collaborator Get() error = %v", err)
	}

	if _, err := svc.Collaborators(context.Background(), created.ID, "stranger"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Collaborators(stranger) error = %v, want ErrNotFound", err)
	}
}

func TestPlaylistGet_ByShareToken(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	token, err := svc.Share(context.Background(), created.ID, "user-1")
	if err != nil {
		t.Fatalf("setup: Share() error = %v", err)
	}

	if len(token) < shareKeyMinLength {
		t.Fatalf("share token %q is shorter than the routing threshold %d", token, shareKeyMinLength)
	}

	got, err := svc.Get(context.Background(), token, "")
	if err != nil {
		t.Fatalf("Get(shareToken) error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("Get(shareToken) = %q, want %q", got.ID, created.ID)
	}
}

func TestPlaylistGet_LongKeyFallsBackToID(t *testing.T) {
	svc, repo, _ := newTestPlaylistService(t)

	// Force a primary id at share-token length: the token lookup must miss
	// and fall back to the id lookup instead of failing.
	longID := strings.Repeat("x", shareKeyMinLength)
	repo.playlists[longID] = &model.Playlist{ID: longID, Name: "edge", OwnerID: "user-1"}

	got, err := svc.Get(context.Background(), longID, "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != longID {
		t.Errorf("Get() = %q, want %q", got.ID, longID)
	}
}

func TestPlaylistShare_Stable(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	first, err := svc.Share(context.Background(), created.ID, "user-1")
	if err != nil {
		t.Fatalf("Share() error = %v", err)
	}
	second, err := svc.Share(context.Background(), created.ID, "user-1")
	if err != nil {
		t.Fatalf("second Share() error = %v", err)
	}
	if first != second {
		t.Errorf("sharing twice minted different tokens: %q vs %q", first, second)
	}
}

// =========================================================================
// ENTRY TESTS
// =========================================================================

func TestPlaylistAddClip_OnlyLive(t *testing.T) {
	svc, _, clips := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	hidden := seedClip(t, clips, model.ClipStatusHidden)

	_, err = svc.AddClip(context.Background(), created.ID, hidden.ID, "user-1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for a hidden clip", err)
	}
}

func TestPlaylistRemoveClip_CompactsPositions(t *testing.T) {
	svc, repo, clips := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	a := seedClip(t, clips, model.ClipStatusLive)
	b := seedClip(t, clips, model.ClipStatusLive)
	c := seedClip(t, clips, model.ClipStatusLive)
	for _, clip := range []*model.Clip{a, b, c} {
		if _, err := svc.AddClip(context.Background(), created.ID, clip.ID, "user-1"); err != nil {
			t.Fatalf("setup: AddClip() error = %v", err)
		}
	}

	if err := svc.RemoveClip(context.Background(), created.ID, b.ID, "user-1"); err != nil {
		t.Fatalf("RemoveClip() error = %v", err)
	}

	entries := repo.entries[created.ID]
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for i, e := range entries {
		if e.Position != i {
			t.Errorf("entry %d has position %d, want dense 0..n-1", i, e.Position)
		}
	}
}

// The insert event for a playlist entry carries the entry row id. The
// delete must carry the SAME id, or a subscribed view that keyed the row
// on insert can never remove it.
func TestPlaylistRemoveClip_EvictsByInsertedID(t *testing.T) {
	playlists := newMockPlaylistRepo()
	clips := newMockClipRepo()
	hub := realtime.NewHub(testLogger())
	svc := NewPlaylistService(playlists, clips, hub, testLogger())

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	clip := seedClip(t, clips, model.ClipStatusLive)

	sub := hub.Subscribe("playlist_clips", "", nil)
	defer sub.Close()

	if _, err := svc.AddClip(context.Background(), created.ID, clip.ID, "user-1"); err != nil {
		t.Fatalf("setup: AddClip() error = %v", err)
	}
	if err := svc.RemoveClip(context.Background(), created.ID, clip.ID, "user-1"); err != nil {
		t.Fatalf("RemoveClip() error = %v", err)
	}

	recv := func(want realtime.Action) realtime.Event {
		t.Helper()
		select {
		case ev := <-sub.C:
			if ev.Action != want {
				t.Fatalf("event action = %q, want %q", ev.Action, want)
			}
			return ev
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s event", want)
			return realtime.Event{}
		}
	}

	inserted := recv(realtime.ActionInsert)
	deleted := recv(realtime.ActionDelete)
	if inserted.ID != deleted.ID {
		t.Errorf("delete announced id %q, insert announced %q; they must match", deleted.ID, inserted.ID)
	}
}

func TestPlaylistReorder(t *testing.T) {
	svc, repo, clips := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	a := seedClip(t, clips, model.ClipStatusLive)
	b := seedClip(t, clips, model.ClipStatusLive)
	for _, clip := range []*model.Clip{a, b} {
		if _, err := svc.AddClip(context.Background(), created.ID, clip.ID, "user-1"); err != nil {
			t.Fatalf("setup: AddClip() error = %v", err)
		}
	}

	if err := svc.Reorder(context.Background(), created.ID, "user-1", []string{b.ID, a.ID}); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	entries := repo.entries[created.ID]
	if entries[0].ClipID != b.ID || entries[1].ClipID != a.ID {
		t.Error("Reorder() did not apply the new order")
	}
}

func TestPlaylistReorder_WrongClipSet(t *testing.T) {
	svc, _, clips := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	a := seedClip(t, clips, model.ClipStatusLive)
	if _, err := svc.AddClip(context.Background(), created.ID, a.ID, "user-1"); err != nil {
		t.Fatalf("setup: AddClip() error = %v", err)
	}

	// Wrong length.
	err = svc.Reorder(context.Background(), created.ID, "user-1", []string{a.ID, "other"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for extra clip", err)
	}

	// Right length, wrong member.
	err = svc.Reorder(context.Background(), created.ID, "user-1", []string{"other"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for unknown clip", err)
	}
}

// =========================================================================
// PERMISSION TESTS
// =========================================================================

func TestPlaylistEdit_StrangerForbidden(t *testing.T) {
	svc, _, clips := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	clip := seedClip(t, clips, model.ClipStatusLive)

	_, err = svc.AddClip(context.Background(), created.ID, clip.ID, "stranger")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
}

func TestPlaylistEdit_CollaboratorAllowed(t *testing.T) {
	svc, _, clips := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if err := svc.AddCollaborator(context.Background(), created.ID, "user-1", "user-2"); err != nil {
		t.Fatalf("setup: AddCollaborator() error = %v", err)
	}
	clip := seedClip(t, clips, model.ClipStatusLive)

	if _, err := svc.AddClip(context.Background(), created.ID, clip.ID, "user-2"); err != nil {
		t.Errorf("collaborator AddClip() error = %v", err)
	}
}

func TestPlaylistCollaborators_OwnerOnly(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if err := svc.AddCollaborator(context.Background(), created.ID, "user-1", "user-2"); err != nil {
		t.Fatalf("setup: AddCollaborator() error = %v", err)
	}

	// A collaborator cannot manage the roster.
	err = svc.AddCollaborator(context.Background(), created.ID, "user-2", "user-3")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
}

func TestPlaylistRemoveCollaborator_OwnerIrremovable(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	err = svc.RemoveCollaborator(context.Background(), created.ID, "user-1", "user-1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation when removing the owner", err)
	}
}

func TestPlaylistDelete_OwnerOnly(t *testing.T) {
	svc, _, _ := newTestPlaylistService(t)

	created, err := svc.Create(context.Background(), "user-1", "Night Drives", false)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if err := svc.AddCollaborator(context.Background(), created.ID, "user-1", "user-2"); err != nil {
		t.Fatalf("setup: AddCollaborator() error = %v", err)
	}

	err = svc.Delete(context.Background(), created.ID, "user-2")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("collaborator Delete() error = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(context.Background(), created.ID, "user-1"); err != nil {
		t.Errorf("owner Delete() error = %v", err)
	}
}
