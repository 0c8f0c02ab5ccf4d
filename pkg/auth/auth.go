package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenPrefix marks bearer tokens issued by this service.
const TokenPrefix = "ppsub_"

// TokenManager manages API authentication tokens. Tokens are bound to an
// actor identity and a role; only the bcrypt hash is kept server-side.
type TokenManager struct {
	tokens map[string]*TokenInfo
	mu     sync.RWMutex
}

// TokenInfo contains token metadata
type TokenInfo struct {
	Hash      string
	ActorID   string
	Role      models.Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[string]*TokenInfo),
	}
}

// IssueToken generates a new authentication token for an actor. The returned
// bearer token has the form ppsub_<actor>_<key>; the key segment is hex, so
// the last underscore always separates it from the actor ID.
func (tm *TokenManager) IssueToken(actorID string, role models.Role, duration time.Duration) (string, error) {
	if !models.ValidRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	key := hex.EncodeToString(keyBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.tokens[actorID] = &TokenInfo{
		Hash:      string(hash),
		ActorID:   actorID,
		Role:      role,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
	}

	return TokenPrefix + actorID + "_" + key, nil
}

// ValidateToken validates a key for an actor and returns the role it was
// issued with
func (tm *TokenManager) ValidateToken(actorID, key string) (models.Role, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	info, ok := tm.tokens[actorID]
	if !ok {
		return "", ErrInvalidToken
	}

	if time.Now().After(info.ExpiresAt) {
		return "", ErrTokenExpired
	}

	if err := bcrypt.CompareHashAndPassword([]byte(info.Hash), []byte(key)); err != nil {
		return "", ErrInvalidToken
	}

	return info.Role, nil
}

// ValidateBearer parses a full bearer token and validates its key. Actor IDs
// may contain underscores; the hex key never does, so the split happens at
// the last underscore.
func (tm *TokenManager) ValidateBearer(bearer string) (string, models.Role, error) {
	if !strings.HasPrefix(bearer, TokenPrefix) {
		return "", "", ErrInvalidToken
	}
	rest := bearer[len(TokenPrefix):]
	sep := strings.LastIndex(rest, "_")
	if sep <= 0 || sep == len(rest)-1 {
		return "", "", ErrInvalidToken
	}

	actorID := rest[:sep]
	role, err := tm.ValidateToken(actorID, rest[sep+1:])
	if err != nil {
		return "", "", err
	}
	return actorID, role, nil
}

// RevokeToken revokes an actor's token
func (tm *TokenManager) RevokeToken(actorID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	delete(tm.tokens, actorID)
}

// CleanupExpiredTokens removes expired tokens
func (tm *TokenManager) CleanupExpiredTokens() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	for actorID, info := range tm.tokens {
		if now.After(info.ExpiresAt) {
			delete(tm.tokens, actorID)
		}
	}
}
