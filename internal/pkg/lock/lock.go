// Package lock provides keyed locking for read-modify-write sequences.
// Keys are arbitrary strings: the file store locks per record kind and the
// arena locks per user id.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrLockTimeout is returned by WithLockContext when the key stays busy.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// keyMutex wraps a mutex with a reference count so idle keys can be dropped.
type keyMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyLock provides one mutex per key.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// New creates a new KeyLock instance.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyMutex)}
}

// acquire returns the mutex for key, creating it if needed, and registers
// the caller as a holder or waiter.
func (kl *KeyLock) acquire(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m, ok := kl.locks[key]
	if !ok {
		m = &keyMutex{}
		kl.locks[key] = m
	}
	m.refs++
	return m
}

// release drops the caller's reference and forgets the key once unused.
func (kl *KeyLock) release(key string, m *keyMutex) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m.refs--
	if m.refs <= 0 {
		delete(kl.locks, key)
	}
}

// Lock acquires the lock for key.
func (kl *KeyLock) Lock(key string) {
	kl.acquire(key).mu.Lock()
}

// Unlock releases the lock for key. Unlocking a key that is not held is a no-op.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return
	}
	m.mu.Unlock()
	kl.release(key, m)
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (kl *KeyLock) TryLock(key string) bool {
	m := kl.acquire(key)
	if m.mu.TryLock() {
		return true
	}
	kl.release(key, m)
	return false
}

// LockWithTimeout attempts to acquire the lock with a timeout.
// Returns true if the lock was acquired, false if timeout or cancellation occurred.
func (kl *KeyLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	m := kl.acquire(key)

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// The waiter still gets the mutex eventually; hand it straight back.
		go func() {
			<-done
			m.mu.Unlock()
			kl.release(key, m)
		}()
		return false
	}
}

// WithLock executes fn while holding the lock for key.
func (kl *KeyLock) WithLock(key string, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the lock for key,
// giving up with ErrLockTimeout when the lock is not acquired in time.
func (kl *KeyLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// LockAll acquires the locks for all keys in a stable order so that two
// callers locking overlapping sets cannot deadlock. It returns the ordered,
// de-duplicated keys to pass to UnlockAll.
func (kl *KeyLock) LockAll(keys ...string) []string {
	ordered := sortedUnique(keys)
	for _, k := range ordered {
		kl.Lock(k)
	}
	return ordered
}

// UnlockAll releases keys previously returned by LockAll.
func (kl *KeyLock) UnlockAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		kl.Unlock(keys[i])
	}
}

// IsLocked checks if a key currently has an active holder.
// Note: This is a point-in-time check and may change immediately after.
func (kl *KeyLock) IsLocked(key string) bool {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return false
	}
	if m.mu.TryLock() {
		m.mu.Unlock()
		return false
	}
	return true
}

// Len returns the number of keys currently tracked.
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}

func sortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
