package memory

import (
	"context"
	"sync"
	"time"

	"agroguardian-api/internal/model"
)

type counterEntry struct {
	count     int
	expiresAt time.Time
}

// RateLimitCache is a windowed counter matching the Redis-backed cache:
// the first increment fixes the window, later ones do not slide it.
type RateLimitCache struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
}

func NewRateLimitCache() *RateLimitCache {
	return &RateLimitCache{counters: make(map[string]*counterEntry)}
}

func (c *RateLimitCache) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	e := c.counters[key]
	if e == nil || now.After(e.expiresAt) {
		e = &counterEntry{expiresAt: now.Add(window)}
		c.counters[key] = e
	}
	e.count++
	return e.count, nil
}

func (c *RateLimitCache) Count(ctx context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.counters[key]
	if e == nil || time.Now().After(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

func (c *RateLimitCache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, key)
	return nil
}

// OTPAttemptCache counts failed verifications per phone.
type OTPAttemptCache struct {
	mu       sync.Mutex
	failures map[string]*counterEntry
}

func NewOTPAttemptCache() *OTPAttemptCache {
	return &OTPAttemptCache{failures: make(map[string]*counterEntry)}
}

func (c *OTPAttemptCache) RecordFailure(ctx context.Context, phone string, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	e := c.failures[phone]
	if e == nil || now.After(e.expiresAt) {
		e = &counterEntry{expiresAt: now.Add(window)}
		c.failures[phone] = e
	}
	e.count++
	return e.count, nil
}

func (c *OTPAttemptCache) Failures(ctx context.Context, phone string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.failures[phone]
	if e == nil || time.Now().After(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

func (c *OTPAttemptCache) Clear(ctx context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, phone)
	return nil
}

type sessionEntry struct {
	session   model.Session
	expiresAt time.Time
}

// SessionCache is a TTL map keyed by token.
type SessionCache struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewSessionCache() *SessionCache {
	return &SessionCache{sessions: make(map[string]*sessionEntry)}
}

func (c *SessionCache) Put(ctx context.Context, session *model.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[session.Token] = &sessionEntry{
		session:   *session,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *SessionCache) Get(ctx context.Context, token string) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.sessions[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		delete(c.sessions, token)
		return nil, model.ErrNotFound
	}
	cp := e.session
	return &cp, nil
}

func (c *SessionCache) Delete(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, token)
	return nil
}
