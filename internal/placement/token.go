package placement

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// TokenManager issues and validates the join tokens a new broker node
// presents to the placement center's leader before it is added as a
// raft voter.
//
// Grounded on the teacher's pkg/manager/token.go, unchanged beyond the
// package move: the join-token lifecycle (random 32-byte token, TTL,
// single-use-by-convention validation) generalizes directly from
// manager/worker roles to this domain's cluster types.
type TokenManager struct {
	mu     sync.RWMutex
	tokens map[string]*JoinToken
}

// JoinToken is a time-limited credential presented by a node joining
// a cluster.
type JoinToken struct {
	Token     string
	ClusterType string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewTokenManager returns an empty TokenManager.
func NewTokenManager() *TokenManager {
	return &TokenManager{tokens: make(map[string]*JoinToken)}
}

// GenerateToken mints a new token for clusterType, valid for duration.
func (tm *TokenManager) GenerateToken(clusterType string, duration time.Duration) (*JoinToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	jt := &JoinToken{
		Token:       hex.EncodeToString(raw),
		ClusterType: clusterType,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(duration),
	}

	tm.mu.Lock()
	tm.tokens[jt.Token] = jt
	tm.mu.Unlock()

	return jt, nil
}

// ValidateToken returns the cluster type a token was issued for, or an
// error if the token is unknown or expired.
func (tm *TokenManager) ValidateToken(token string) (string, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	jt, ok := tm.tokens[token]
	if !ok {
		return "", fmt.Errorf("invalid token")
	}
	if time.Now().After(jt.ExpiresAt) {
		return "", fmt.Errorf("token expired")
	}
	return jt.ClusterType, nil
}

// RevokeToken removes a token, e.g. once it has been consumed.
func (tm *TokenManager) RevokeToken(token string) {
	tm.mu.Lock()
	delete(tm.tokens, token)
	tm.mu.Unlock()
}

// CleanupExpired removes every expired token.
func (tm *TokenManager) CleanupExpired() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	now := time.Now()
	for token, jt := range tm.tokens {
		if now.After(jt.ExpiresAt) {
			delete(tm.tokens, token)
		}
	}
}
