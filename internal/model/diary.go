package model

import "time"

// DiaryEntry is a client-encrypted journal entry.
//
// The server never sees plaintext: Ciphertext is AES-GCM output over the
// entry's JSON (title, body, tags, mood), encrypted in the client under a
// key derived from the user's password or PIN. Nonce and Salt are the only
// crypto parameters stored alongside — the key itself is never transmitted.
type DiaryEntry struct {
	ID         string    `json:"id"         db:"id"`
	UserID     string    `json:"userId"     db:"user_id"`
	Ciphertext []byte    `json:"ciphertext" db:"ciphertext"`
	Nonce      []byte    `json:"nonce"      db:"nonce"`
	Salt       []byte    `json:"salt"       db:"salt"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`
}

// DiaryContent is the plaintext shape of an entry before encryption and
// after decryption. It only ever exists client-side.
type DiaryContent struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags,omitempty"`
	Mood  string   `json:"mood,omitempty"`
}
