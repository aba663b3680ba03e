// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside the Go binary as a single
// file. No separate database server to install, configure, or manage. The
// durable entities here (clips, playlists, topics, diary rows, communities,
// profiles) are all small relational rows, which is exactly what it is for.
// Live-room presence is the one thing deliberately NOT stored here — that
// lives in Redis with TTLs (see repository/redispresence).
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool. Per-entity repos (ClipRepo,
// PlaylistRepo, ...) are constructed from it and share the pool; the DB
// itself only owns the lifecycle and the migrations.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" in tests for a throwaway database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path or permissions
	// problem surfaces here, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress —
	// necessary for a web server where many requests hit the DB at once.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (backwards compatibility).
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates all tables. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so migrate is safe to run on every start.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id         TEXT PRIMARY KEY,
				handle     TEXT NOT NULL UNIQUE,
				name       TEXT NOT NULL DEFAULT '',
				avatar_url TEXT NOT NULL DEFAULT '',
				bio        TEXT NOT NULL DEFAULT '',
				pin_hash   TEXT NOT NULL DEFAULT '',
				github_id  INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id);
		`},
		{"follows", `
			CREATE TABLE IF NOT EXISTS follows (
				follower_id TEXT NOT NULL REFERENCES users(id),
				followee_id TEXT NOT NULL REFERENCES users(id),
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (follower_id, followee_id)
			);
		`},
		{"clips", `
			CREATE TABLE IF NOT EXISTS clips (
				id            TEXT PRIMARY KEY,
				-- No FK to users: anonymizing a clip clears author_id to ''.
				author_id     TEXT NOT NULL,
				audio_url     TEXT NOT NULL DEFAULT '',
				mood          TEXT NOT NULL DEFAULT '',
				duration      INTEGER NOT NULL DEFAULT 0,
				transcript    TEXT NOT NULL DEFAULT '',
				summary       TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL DEFAULT 'draft',
				reactions     TEXT NOT NULL DEFAULT '{}',
				listen_count  INTEGER NOT NULL DEFAULT 0,
				scheduled_at  DATETIME,
				content_rated INTEGER NOT NULL DEFAULT 0,
				parent_id     TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_clips_status_created ON clips(status, created_at);
			CREATE INDEX IF NOT EXISTS idx_clips_author ON clips(author_id);
			CREATE INDEX IF NOT EXISTS idx_clips_parent ON clips(parent_id);
		`},
		{"saved_clips", `
			CREATE TABLE IF NOT EXISTS saved_clips (
				user_id    TEXT NOT NULL REFERENCES users(id),
				clip_id    TEXT NOT NULL REFERENCES clips(id),
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, clip_id)
			);
		`},
		{"playlists", `
			CREATE TABLE IF NOT EXISTS playlists (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				owner_id    TEXT NOT NULL REFERENCES users(id),
				public      INTEGER NOT NULL DEFAULT 0,
				share_token TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_playlists_share_token ON playlists(share_token);
			CREATE INDEX IF NOT EXISTS idx_playlists_owner ON playlists(owner_id);
		`},
		{"playlist_clips", `
			CREATE TABLE IF NOT EXISTS playlist_clips (
				id          TEXT PRIMARY KEY,
				playlist_id TEXT NOT NULL REFERENCES playlists(id),
				clip_id     TEXT NOT NULL REFERENCES clips(id),
				position    INTEGER NOT NULL,
				added_by    TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (playlist_id, clip_id)
			);
			CREATE INDEX IF NOT EXISTS idx_playlist_clips_playlist ON playlist_clips(playlist_id, position);
		`},
		{"playlist_collaborators", `
			CREATE TABLE IF NOT EXISTS playlist_collaborators (
				playlist_id TEXT NOT NULL REFERENCES playlists(id),
				user_id     TEXT NOT NULL REFERENCES users(id),
				role        TEXT NOT NULL DEFAULT 'editor',
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (playlist_id, user_id)
			);
		`},
		{"rooms", `
			CREATE TABLE IF NOT EXISTS rooms (
				id           TEXT PRIMARY KEY,
				title        TEXT NOT NULL,
				host_id      TEXT NOT NULL REFERENCES users(id),
				community_id TEXT NOT NULL DEFAULT '',
				live         INTEGER NOT NULL DEFAULT 1,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				ended_at     DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_rooms_live ON rooms(live, created_at);
		`},
		{"room_participants", `
			CREATE TABLE IF NOT EXISTS room_participants (
				id        TEXT PRIMARY KEY,
				room_id   TEXT NOT NULL REFERENCES rooms(id),
				user_id   TEXT NOT NULL REFERENCES users(id),
				role      TEXT NOT NULL DEFAULT 'listener',
				muted     INTEGER NOT NULL DEFAULT 0,
				speaking  INTEGER NOT NULL DEFAULT 0,
				joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				left_at   DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_participants_room ON room_participants(room_id, left_at);
		`},
		{"topics", `
			CREATE TABLE IF NOT EXISTS topics (
				id           TEXT PRIMARY KEY,
				title        TEXT NOT NULL,
				date         TEXT NOT NULL DEFAULT '',
				community_id TEXT NOT NULL DEFAULT '',
				author_id    TEXT NOT NULL REFERENCES users(id),
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_topics_date ON topics(date);
			CREATE INDEX IF NOT EXISTS idx_topics_community ON topics(community_id);
		`},
		{"topic_comments", `
			CREATE TABLE IF NOT EXISTS topic_comments (
				id         TEXT PRIMARY KEY,
				topic_id   TEXT NOT NULL REFERENCES topics(id),
				author_id  TEXT NOT NULL REFERENCES users(id),
				body       TEXT NOT NULL,
				parent_id  TEXT NOT NULL DEFAULT '',
				upvotes    INTEGER NOT NULL DEFAULT 0,
				question   INTEGER NOT NULL DEFAULT 0,
				answered   INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_comments_topic ON topic_comments(topic_id, created_at);
		`},
		{"diary_entries", `
			CREATE TABLE IF NOT EXISTS diary_entries (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				ciphertext BLOB NOT NULL,
				nonce      BLOB NOT NULL,
				salt       BLOB NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_diary_user ON diary_entries(user_id, created_at);
		`},
		{"communities", `
			CREATE TABLE IF NOT EXISTS communities (
				id           TEXT PRIMARY KEY,
				name         TEXT NOT NULL UNIQUE,
				description  TEXT NOT NULL DEFAULT '',
				member_count INTEGER NOT NULL DEFAULT 0,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"community_members", `
			CREATE TABLE IF NOT EXISTS community_members (
				community_id TEXT NOT NULL REFERENCES communities(id),
				user_id      TEXT NOT NULL REFERENCES users(id),
				joined_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (community_id, user_id)
			);
		`},
		{"login_links", `
			CREATE TABLE IF NOT EXISTS login_links (
				token      TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				expires_at DATETIME NOT NULL,
				used_at    DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	return nil
}
