package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Strict decoding rejects tokens whose trailing padding bits differ from
// the canonical encoding, so every single-byte mutation fails validation.
var tokenEncoding = base64.RawURLEncoding.Strict()

// SaveData is the progress snapshot carried inside a continuity token. It
// is everything a reconnecting client may restore; nothing else in a token
// is ever trusted.
type SaveData struct {
	Score     int    `msgpack:"score"`
	Succeeded int    `msgpack:"succeeded"`
	Total     int    `msgpack:"total"`
	Name      string `msgpack:"name"`
}

// Signer mints and verifies continuity tokens. Players are anonymous, so
// the keyed tag is the only boundary stopping a client from fabricating an
// inflated score on reconnect. The key never leaves the process.
type Signer struct {
	key []byte
}

// NewSigner derives a signer from the given key, generating a random
// per-process key when none is configured.
func NewSigner(key []byte) *Signer {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("token: unable to generate signing key: " + err.Error())
		}
	}
	return &Signer{key: key}
}

// Sign serializes the payload and appends a keyed integrity tag, producing
// an opaque token string.
func (s *Signer) Sign(data SaveData) string {
	payload, err := msgpack.Marshal(data)
	if err != nil {
		// SaveData is a plain value struct; encoding cannot fail at runtime.
		panic("token: encode save data: " + err.Error())
	}
	return tokenEncoding.EncodeToString(payload) + "." + tokenEncoding.EncodeToString(s.tag(payload))
}

// Validate returns the payload carried by a token only when its integrity
// tag matches exactly. Any malformed or tampered token fails closed: zero
// data, ok=false, no error surfaced to the caller.
func (s *Signer) Validate(token string) (SaveData, bool) {
	encodedPayload, encodedTag, found := strings.Cut(token, ".")
	if !found {
		return SaveData{}, false
	}
	payload, err := tokenEncoding.DecodeString(encodedPayload)
	if err != nil {
		return SaveData{}, false
	}
	tag, err := tokenEncoding.DecodeString(encodedTag)
	if err != nil {
		return SaveData{}, false
	}
	if !hmac.Equal(tag, s.tag(payload)) {
		return SaveData{}, false
	}
	var data SaveData
	if err := msgpack.Unmarshal(payload, &data); err != nil {
		return SaveData{}, false
	}
	return data, true
}

func (s *Signer) tag(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}
