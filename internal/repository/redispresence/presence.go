// Package redispresence implements the RoomPresence interface on Redis.
//
// WHY REDIS FOR PRESENCE?
// Presence is the one piece of room state that must expire on its own. If a
// server crashes mid-room, or a client's last heartbeat never arrives, the
// TTL on these keys empties the room without any cleanup job. The durable
// participant history (who was in the room, when they left) lives in SQLite;
// Redis only ever answers "who is here right now".
//
// KEY LAYOUT
//
//	presence:{roomID}          — set of user ids in the room
//	presence:{roomID}:{userID} — JSON participant record, TTL-bound
//
// Both carry the same TTL, refreshed by Touch on every heartbeat.
package redispresence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

var _ repository.RoomPresence = (*Store)(nil)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func membersKey(roomID string) string {
	return fmt.Sprintf("presence:%s", roomID)
}

func participantKey(roomID, userID string) string {
	return fmt.Sprintf("presence:%s:%s", roomID, userID)
}

func (s *Store) Join(ctx context.Context, roomID string, p model.Participant, ttl time.Duration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redispresence: marshaling participant: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, participantKey(roomID, p.UserID), b, ttl)
	pipe.SAdd(ctx, membersKey(roomID), p.UserID)
	pipe.Expire(ctx, membersKey(roomID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redispresence: joining room %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) Leave(ctx context.Context, roomID, userID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, membersKey(roomID), userID)
	pipe.Del(ctx, participantKey(roomID, userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redispresence: leaving room %s: %w", roomID, err)
	}
	return nil
}

// List returns the participants currently in the room. Members whose
// per-participant key already expired are skipped and lazily removed from
// the set — an expired key means the client stopped heartbeating.
func (s *Store) List(ctx context.Context, roomID string) ([]model.Participant, error) {
	ids, err := s.rdb.SMembers(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redispresence: listing members of %s: %w", roomID, err)
	}
	if len(ids) == 0 {
		return []model.Participant{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = participantKey(roomID, id)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redispresence: fetching participants of %s: %w", roomID, err)
	}

	participants := make([]model.Participant, 0, len(ids))
	var stale []any
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var p model.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		participants = append(participants, p)
	}

	if len(stale) > 0 {
		// Best effort; the set self-heals on the next List anyway.
		s.rdb.SRem(ctx, membersKey(roomID), stale...)
	}

	return participants, nil
}

// SetFlags updates the muted/speaking bits on the stored participant
// record, preserving its remaining TTL.
func (s *Store) SetFlags(ctx context.Context, roomID, userID string, muted, speaking bool) error {
	key := participantKey(roomID, userID)

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("redispresence: participant %s not present in %s", userID, roomID)
	}
	if err != nil {
		return fmt.Errorf("redispresence: reading participant: %w", err)
	}

	var p model.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("redispresence: unmarshaling participant: %w", err)
	}
	p.Muted = muted
	p.Speaking = speaking

	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redispresence: marshaling participant: %w", err)
	}

	// KeepTTL preserves the heartbeat-driven expiry; flag flips should not
	// extend a participant's lease.
	if err := s.rdb.Set(ctx, key, b, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("redispresence: writing participant: %w", err)
	}
	return nil
}

// Touch refreshes the TTL on the member set and every participant key.
// A Lua script keeps the refresh atomic so a key cannot expire between the
// SMEMBERS and its EXPIRE.
func (s *Store) Touch(ctx context.Context, roomID string, ttl time.Duration) error {
	script := `
		local members_key = KEYS[1]
		local ttl = tonumber(ARGV[1])
		local room_id = ARGV[2]

		redis.call('EXPIRE', members_key, ttl)

		local user_ids = redis.call('SMEMBERS', members_key)
		for _, uid in ipairs(user_ids) do
			redis.call('EXPIRE', 'presence:' .. room_id .. ':' .. uid, ttl)
		end

		return 'OK'
	`

	err := s.rdb.Eval(ctx, script, []string{membersKey(roomID)},
		int(ttl.Seconds()), roomID).Err()
	if err != nil {
		return fmt.Errorf("redispresence: touching room %s: %w", roomID, err)
	}
	return nil
}

// Clear removes all presence state for a room. Called when the host ends
// the room; crash cleanup is what the TTLs are for.
func (s *Store) Clear(ctx context.Context, roomID string) error {
	script := `
		local members_key = KEYS[1]
		local room_id = ARGV[1]

		local user_ids = redis.call('SMEMBERS', members_key)

		local keys_to_delete = {members_key}
		for _, uid in ipairs(user_ids) do
			table.insert(keys_to_delete, 'presence:' .. room_id .. ':' .. uid)
		end

		redis.call('DEL', unpack(keys_to_delete))
		return 'OK'
	`

	if err := s.rdb.Eval(ctx, script, []string{membersKey(roomID)}, roomID).Err(); err != nil {
		return fmt.Errorf("redispresence: clearing room %s: %w", roomID, err)
	}
	return nil
}
