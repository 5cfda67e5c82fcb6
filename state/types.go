package state

import (
	"context"
	"sync"
	"time"
)

// ==============================================================================
// KEYED LOCKS
// ==============================================================================
//
// In-process mutual exclusion per key ("race:<id>", "ledger:<wallet>", ...).
// Entries are reference counted and dropped once nobody holds or waits on them.
// For several server instances use db.RedisLocker instead.
//
// ==============================================================================

type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// ==============================================================================
// RACE FEED STATE
// ==============================================================================

type FeedEvent struct {
	Type      string      `json:"type"`
	RaceID    string      `json:"raceId"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// FeedState keeps the most recent race events so new subscribers can catch up.
type FeedState struct {
	mu      sync.RWMutex
	Events  []FeedEvent
	MaxSize int
}

func NewFeedState(maxSize int) *FeedState {
	if maxSize <= 0 {
		maxSize = 15
	}
	return &FeedState{
		Events:  make([]FeedEvent, 0, maxSize),
		MaxSize: maxSize,
	}
}

func (f *FeedState) Add(ev FeedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Events = append(f.Events, ev)
	if len(f.Events) > f.MaxSize {
		f.Events = f.Events[len(f.Events)-f.MaxSize:]
	}
}

func (f *FeedState) Recent() []FeedEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]FeedEvent, len(f.Events))
	copy(out, f.Events)
	return out
}
