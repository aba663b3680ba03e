// Package diarycrypt is the client-side encryption for diary entries.
//
// The contract is zero server knowledge: the key is derived from the user's
// diary password on the device, entries are sealed before they ever cross
// the wire, and the server stores ciphertext+nonce+salt as opaque blobs. A
// wrong password shows up as an authentication failure on Open — there is
// no oracle beyond "this entry did not decrypt".
package diarycrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// argon2id parameters: 1 pass over 64 MiB with 4 lanes. Memory-hard
	// enough to make offline guessing expensive, cheap enough to run on
	// every diary unlock.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4

	KeySize   = 32
	SaltSize  = 16
	nonceSize = 12
)

// NewSalt returns a fresh random salt. One salt per entry — re-deriving
// per entry means a password change only re-encrypts going forward.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("diarycrypt: generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches the diary password into a 32-byte AES key.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, KeySize)
}

// EncryptEntry serializes entry to JSON and seals it with AES-GCM under
// key. A fresh 12-byte nonce is generated per call and returned alongside
// the ciphertext.
func EncryptEntry(entry any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, nil, fmt.Errorf("diarycrypt: marshaling entry: %w", err)
	}

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("diarycrypt: generating nonce: %w", err)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptEntry opens the ciphertext and unmarshals the JSON into v.
// A wrong key (or tampered ciphertext) fails the GCM tag check here.
func DecryptEntry(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("diarycrypt: opening entry: %w", err)
	}

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("diarycrypt: creating cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("diarycrypt: creating GCM: %w", err)
	}
	return aesgcm, nil
}
