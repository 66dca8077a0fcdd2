package dashboard

import (
	"crypto/rand"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize    = 16
	maxSessions = 256
	sessionTTL  = 24 * time.Hour
)

// passwordHash keeps only an Argon2id digest of the configured password.
type passwordHash struct {
	salt []byte
	key  []byte
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 3, 64*1024, 4, 32)
}

func hashPassword(password string) passwordHash {
	salt := make([]byte, saltSize)
	rand.Read(salt)
	return passwordHash{salt: salt, key: deriveKey(password, salt)}
}

func (h passwordHash) verify(password string) bool {
	return subtle.ConstantTimeCompare(deriveKey(password, h.salt), h.key) == 1
}

// sessions is the set of logged-in dashboard clients. Entries expire after
// sessionTTL and the oldest are evicted past maxSessions.
type sessions struct {
	lru *expirable.LRU[string, time.Time]
}

func newSessions() *sessions {
	return &sessions{lru: expirable.NewLRU[string, time.Time](maxSessions, nil, sessionTTL)}
}

func (s *sessions) create() string {
	id := uuid.NewString()
	s.lru.Add(id, time.Now())
	return id
}

func (s *sessions) valid(id string) bool {
	if id == "" {
		return false
	}
	return s.lru.Contains(id)
}

func (s *sessions) remove(id string) {
	s.lru.Remove(id)
}
