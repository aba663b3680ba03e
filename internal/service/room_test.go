package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository"
)

// =========================================================================
// MOCK ROOM REPOSITORY AND PRESENCE
// =========================================================================

type mockRoomRepo struct {
	rooms        map[string]*model.Room
	participants map[string]*model.Participant
	nextID       int
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{
		rooms:        make(map[string]*model.Room),
		participants: make(map[string]*model.Participant),
	}
}

func (m *mockRoomRepo) Create(_ context.Context, room *model.Room) error {
	m.nextID++
	room.ID = fmt.Sprintf("room-%d", m.nextID)
	room.Live = true
	room.CreatedAt = time.Now()
	stored := *room
	m.rooms[room.ID] = &stored
	return nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	room, ok := m.rooms[id]
	if !ok {
		return nil, apperror.NotFound("room", id)
	}
	result := *room
	for _, p := range m.participants {
		if p.RoomID == id && p.Present() {
			result.Participants = append(result.Participants, *p)
		}
	}
	return &result, nil
}

func (m *mockRoomRepo) ListLive(_ context.Context, opts repository.ListOptions) ([]model.Room, error) {
	result := make([]model.Room, 0)
	for _, r := range m.rooms {
		if r.Live {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *mockRoomRepo) End(_ context.Context, id string) error {
	room, ok := m.rooms[id]
	if !ok {
		return apperror.NotFound("room", id)
	}
	now := time.Now()
	room.Live = false
	room.EndedAt = &now
	for _, p := range m.participants {
		if p.RoomID == id && p.Present() {
			left := now
			p.LeftAt = &left
		}
	}
	return nil
}

func (m *mockRoomRepo) AddParticipant(_ context.Context, p *model.Participant) error {
	m.nextID++
	p.ID = fmt.Sprintf("part-%d", m.nextID)
	p.JoinedAt = time.Now()
	stored := *p
	m.participants[p.ID] = &stored
	return nil
}

func (m *mockRoomRepo) GetParticipant(_ context.Context, id string) (*model.Participant, error) {
	p, ok := m.participants[id]
	if !ok {
		return nil, apperror.NotFound("participant", id)
	}
	result := *p
	return &result, nil
}

func (m *mockRoomRepo) FindPresent(_ context.Context, roomID, userID string) (*model.Participant, error) {
	for _, p := range m.participants {
		if p.RoomID == roomID && p.UserID == userID && p.Present() {
			result := *p
			return &result, nil
		}
	}
	return nil, apperror.NotFound("participant", userID)
}

func (m *mockRoomRepo) UpdateParticipant(_ context.Context, p *model.Participant) error {
	if _, ok := m.participants[p.ID]; !ok {
		return apperror.NotFound("participant", p.ID)
	}
	stored := *p
	m.participants[p.ID] = &stored
	return nil
}

func (m *mockRoomRepo) MarkLeft(_ context.Context, participantID string, at time.Time) error {
	p, ok := m.participants[participantID]
	if !ok {
		return apperror.NotFound("participant", participantID)
	}
	p.LeftAt = &at
	return nil
}

// mockPresence records presence calls; the durable rows in mockRoomRepo are
// the source of truth, so these just track what got forwarded.
type mockPresence struct {
	members map[string]map[string]bool // roomID -> userID set
	touches int
	cleared []string
}

func newMockPresence() *mockPresence {
	return &mockPresence{members: make(map[string]map[string]bool)}
}

func (m *mockPresence) Join(_ context.Context, roomID string, p model.Participant, _ time.Duration) error {
	if m.members[roomID] == nil {
		m.members[roomID] = make(map[string]bool)
	}
	m.members[roomID][p.UserID] = true
	return nil
}

func (m *mockPresence) Leave(_ context.Context, roomID, userID string) error {
	delete(m.members[roomID], userID)
	return nil
}

func (m *mockPresence) List(_ context.Context, roomID string) ([]model.Participant, error) {
	result := make([]model.Participant, 0)
	for userID := range m.members[roomID] {
		result = append(result, model.Participant{RoomID: roomID, UserID: userID})
	}
	return result, nil
}

func (m *mockPresence) SetFlags(_ context.Context, roomID, userID string, muted, speaking bool) error {
	return nil
}

func (m *mockPresence) Touch(_ context.Context, roomID string, _ time.Duration) error {
	m.touches++
	return nil
}

func (m *mockPresence) Clear(_ context.Context, roomID string) error {
	m.cleared = append(m.cleared, roomID)
	delete(m.members, roomID)
	return nil
}

// mockCommunityRepo backs the membership gate checks.
type mockCommunityRepo struct {
	communities map[string]*model.Community
	members     map[string]map[string]bool // communityID -> userID set
	nextID      int
}

func newMockCommunityRepo() *mockCommunityRepo {
	return &mockCommunityRepo{
		communities: make(map[string]*model.Community),
		members:     make(map[string]map[string]bool),
	}
}

func (m *mockCommunityRepo) Create(_ context.Context, c *model.Community) error {
	m.nextID++
	c.ID = fmt.Sprintf("comm-%d", m.nextID)
	c.CreatedAt = time.Now()
	stored := *c
	m.communities[c.ID] = &stored
	return nil
}

func (m *mockCommunityRepo) GetByID(_ context.Context, id string) (*model.Community, error) {
	c, ok := m.communities[id]
	if !ok {
		return nil, apperror.NotFound("community", id)
	}
	result := *c
	return &result, nil
}

func (m *mockCommunityRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Community, error) {
	result := make([]model.Community, 0, len(m.communities))
	for _, c := range m.communities {
		result = append(result, *c)
	}
	return result, nil
}

func (m *mockCommunityRepo) Join(_ context.Context, communityID, userID string) error {
	if _, ok := m.communities[communityID]; !ok {
		return apperror.NotFound("community", communityID)
	}
	if m.members[communityID] == nil {
		m.members[communityID] = make(map[string]bool)
	}
	if !m.members[communityID][userID] {
		m.members[communityID][userID] = true
		m.communities[communityID].MemberCount++
	}
	return nil
}

func (m *mockCommunityRepo) Leave(_ context.Context, communityID, userID string) error {
	if m.members[communityID][userID] {
		delete(m.members[communityID], userID)
		if m.communities[communityID].MemberCount > 0 {
			m.communities[communityID].MemberCount--
		}
	}
	return nil
}

func (m *mockCommunityRepo) IsMember(_ context.Context, communityID, userID string) (bool, error) {
	return m.members[communityID][userID], nil
}

// =========================================================================
// TEST SETUP
// =========================================================================

func newTestRoomService(t *testing.T) (*RoomService, *mockRoomRepo, *mockPresence, *mockCommunityRepo) {
	t.Helper()
	rooms := newMockRoomRepo()
	presence := newMockPresence()
	communities := newMockCommunityRepo()
	hub := realtime.NewHub(testLogger())
	svc := NewRoomService(rooms, presence, communities, hub, testLogger())
	return svc, rooms, presence, communities
}

func seedCommunity(t *testing.T, communities *mockCommunityRepo, members ...string) *model.Community {
	t.Helper()
	c := &model.Community{Name: "late night"}
	if err := communities.Create(context.Background(), c); err != nil {
		t.Fatalf("setup: seeding community: %v", err)
	}
	for _, userID := range members {
		if err := communities.Join(context.Background(), c.ID, userID); err != nil {
			t.Fatalf("setup: joining community: %v", err)
		}
	}
	return c
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestRoomCreate_HostAutoJoined(t *testing.T) {
	svc, repo, presence, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if len(room.Participants) != 1 || room.Participants[0].Role != model.RoomRoleHost {
		t.Fatal("the host should be a participant with the host role")
	}
	if _, err := repo.FindPresent(context.Background(), room.ID, "host-1"); err != nil {
		t.Errorf("host has no durable participant row: %v", err)
	}
	if !presence.members[room.ID]["host-1"] {
		t.Error("host missing from the presence set")
	}
}

func TestRoomCreate_GatedRequiresHostMembership(t *testing.T) {
	svc, _, _, communities := newTestRoomService(t)

	c := seedCommunity(t, communities, "member-1")

	_, err := svc.Create(context.Background(), "outsider", "members only", c.ID)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden for a non-member host", err)
	}

	if _, err := svc.Create(context.Background(), "member-1", "members only", c.ID); err != nil {
		t.Errorf("member host Create() error = %v", err)
	}
}

// =========================================================================
// JOIN / LEAVE TESTS
// =========================================================================

func TestRoomJoin_Listener(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	p, err := svc.Join(context.Background(), room.ID, "user-2")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if p.Role != model.RoomRoleListener {
		t.Errorf("Role = %q, want listener", p.Role)
	}
}

func TestRoomJoin_CommunityGate(t *testing.T) {
	svc, _, _, communities := newTestRoomService(t)

	c := seedCommunity(t, communities, "host-1", "member-1")
	room, err := svc.Create(context.Background(), "host-1", "members only", c.ID)
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	_, err = svc.Join(context.Background(), room.ID, "outsider")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("outsider Join() error = %v, want ErrForbidden", err)
	}

	if _, err := svc.Join(context.Background(), room.ID, "member-1"); err != nil {
		t.Errorf("member Join() error = %v", err)
	}
}

func TestRoomJoin_RejoinIsNoOp(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	first, err := svc.Join(context.Background(), room.ID, "user-2")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	second, err := svc.Join(context.Background(), room.ID, "user-2")
	if err != nil {
		t.Fatalf("rejoin error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("rejoin created a new participant row: %q vs %q", second.ID, first.ID)
	}
}

func TestRoomJoin_EndedRoom(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if err := svc.End(context.Background(), room.ID, "host-1"); err != nil {
		t.Fatalf("setup: End() error = %v", err)
	}

	_, err = svc.Join(context.Background(), room.ID, "user-2")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for an ended room", err)
	}
}

func TestRoomLeave(t *testing.T) {
	svc, repo, presence, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if _, err := svc.Join(context.Background(), room.ID, "user-2"); err != nil {
		t.Fatalf("setup: Join() error = %v", err)
	}

	if err := svc.Leave(context.Background(), room.ID, "user-2"); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}

	if _, err := repo.FindPresent(context.Background(), room.ID, "user-2"); !errors.Is(err, apperror.ErrNotFound) {
		t.Error("participant row should be closed after Leave")
	}
	if presence.members[room.ID]["user-2"] {
		t.Error("presence entry should be gone after Leave")
	}
}

// =========================================================================
// ROLE / FLAG TESTS
// =========================================================================

func TestRoomSetRole_HostPromotesSpeaker(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if _, err := svc.Join(context.Background(), room.ID, "user-2"); err != nil {
		t.Fatalf("setup: Join() error = %v", err)
	}

	p, err := svc.SetRole(context.Background(), room.ID, "host-1", "user-2", model.RoomRoleSpeaker)
	if err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	if p.Role != model.RoomRoleSpeaker {
		t.Errorf("Role = %q, want speaker", p.Role)
	}
}

func TestRoomSetRole_ListenerForbidden(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	for _, userID := range []string{"user-2", "user-3"} {
		if _, err := svc.Join(context.Background(), room.ID, userID); err != nil {
			t.Fatalf("setup: Join() error = %v", err)
		}
	}

	_, err = svc.SetRole(context.Background(), room.ID, "user-2", "user-3", model.RoomRoleSpeaker)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden for a listener caller", err)
	}
}

func TestRoomSetRole_HostImmutable(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	_, err = svc.SetRole(context.Background(), room.ID, "host-1", "host-1", model.RoomRoleListener)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden when demoting the host", err)
	}
}

func TestRoomSetRole_CannotAssignHost(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if _, err := svc.Join(context.Background(), room.ID, "user-2"); err != nil {
		t.Fatalf("setup: Join() error = %v", err)
	}

	_, err = svc.SetRole(context.Background(), room.ID, "host-1", "user-2", model.RoomRoleHost)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation when assigning the host role", err)
	}
}

func TestRoomSetFlags(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	p, err := svc.SetFlags(context.Background(), room.ID, "host-1", true, false)
	if err != nil {
		t.Fatalf("SetFlags() error = %v", err)
	}
	if !p.Muted || p.Speaking {
		t.Errorf("flags = muted:%v speaking:%v, want muted:true speaking:false", p.Muted, p.Speaking)
	}
}

// =========================================================================
// END TESTS
// =========================================================================

func TestRoomEnd_HostOnly(t *testing.T) {
	svc, _, _, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if _, err := svc.Join(context.Background(), room.ID, "user-2"); err != nil {
		t.Fatalf("setup: Join() error = %v", err)
	}

	err = svc.End(context.Background(), room.ID, "user-2")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-host End() error = %v, want ErrForbidden", err)
	}
}

func TestRoomEnd_ClearsEverything(t *testing.T) {
	svc, repo, presence, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	if _, err := svc.Join(context.Background(), room.ID, "user-2"); err != nil {
		t.Fatalf("setup: Join() error = %v", err)
	}

	if err := svc.End(context.Background(), room.ID, "host-1"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	if repo.rooms[room.ID].Live {
		t.Error("room should not be live after End")
	}
	if len(presence.cleared) != 1 || presence.cleared[0] != room.ID {
		t.Error("presence should be cleared on End")
	}
	for _, p := range repo.participants {
		if p.RoomID == room.ID && p.Present() {
			t.Errorf("participant %s still open after End", p.ID)
		}
	}
}

func TestRoomHeartbeat(t *testing.T) {
	svc, _, presence, _ := newTestRoomService(t)

	room, err := svc.Create(context.Background(), "host-1", "open mic", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}

	if err := svc.Heartbeat(context.Background(), room.ID); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if presence.touches != 1 {
		t.Errorf("touches = %d, want 1", presence.touches)
	}
}
