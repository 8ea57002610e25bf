package orderid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"ms-service-orders/internal/logger"
)

const (
	MinID    = 101
	MaxID    = 999
	PoolSize = MaxID - MinID + 1
)

var (
	// ErrPoolExhausted is never returned to callers: Allocate resets the pool and logs it.
	ErrPoolExhausted  = errors.New("order id pool exhausted")
	ErrNotInitialized = errors.New("order id allocator not initialized")
)

// UsedIDStore is the durable home of the issued-id set.
type UsedIDStore interface {
	LoadUsedIDs(ctx context.Context) ([]string, error)
	SaveUsedIDs(ctx context.Context, ids []string) error
}

// Claimer is implemented by stores shared between processes. Claim must atomically add id to the
// shared set and report whether this caller was the one that added it.
type Claimer interface {
	Claim(ctx context.Context, id string) (bool, error)
}

type Stats struct {
	Total      int `json:"total"`
	Used       int `json:"used"`
	Available  int `json:"available"`
	Percentage int `json:"percentage"`
	Resets     int `json:"resets"`
}

type Allocator struct {
	mu          sync.Mutex
	store       UsedIDStore
	logger      *logger.Logger
	intN        func(n int) int
	timeout     time.Duration
	available   []string
	used        map[string]struct{}
	resets      int
	initialized bool
}

type Option func(*Allocator)

// WithSeed makes the shuffle deterministic.
func WithSeed(seed uint64) Option {
	return func(a *Allocator) {
		a.intN = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).IntN
	}
}

// WithTimeout bounds each call to the used-id store.
func WithTimeout(d time.Duration) Option {
	return func(a *Allocator) {
		a.timeout = d
	}
}

func NewAllocator(store UsedIDStore, log *logger.Logger, opts ...Option) *Allocator {
	a := &Allocator{
		store:   store,
		logger:  log,
		intN:    rand.IntN,
		timeout: 5 * time.Second,
		used:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Valid reports whether id is a well-formed order id (three digits, 101..999).
func Valid(id string) bool {
	if len(id) != 3 {
		return false
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return false
	}
	return n >= MinID && n <= MaxID
}

// Initialize builds the shuffled candidate pool and removes every id the store has already issued.
func (a *Allocator) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	stored, err := a.store.LoadUsedIDs(ctx)
	if err != nil {
		return fmt.Errorf("load used order ids: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.used = make(map[string]struct{}, len(stored))
	for _, id := range stored {
		if !Valid(id) {
			a.logger.Warn("ORDER_ID", fmt.Sprintf("Ignoring malformed stored order id %q", id))
			continue
		}
		a.used[id] = struct{}{}
	}

	pool := a.shuffledPool()
	a.available = pool[:0]
	for _, id := range pool {
		if _, taken := a.used[id]; !taken {
			a.available = append(a.available, id)
		}
	}
	a.initialized = true

	a.logger.LogAllocator("INIT", fmt.Sprintf("%d used, %d available", len(a.used), len(a.available)))
	return nil
}

// Allocate issues an id that no other caller has received since the last reset.
// A failed save of the used set is logged; the returned id stays issued regardless.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return "", ErrNotInitialized
	}

	claimer, shared := a.store.(Claimer)

	for {
		if len(a.available) == 0 {
			a.logger.Warn("ORDER_ID", fmt.Sprintf("%v: all %d order ids have been issued, resetting pool", ErrPoolExhausted, PoolSize))
			if err := a.resetLocked(ctx); err != nil {
				a.logger.Error("ORDER_ID", fmt.Sprintf("Failed to persist pool reset: %v", err))
			}
		}

		last := len(a.available) - 1
		id := a.available[last]
		a.available = a.available[:last]
		a.used[id] = struct{}{}

		if !shared {
			if err := a.saveLocked(ctx); err != nil {
				a.logger.Error("ORDER_ID", fmt.Sprintf("Failed to save used order ids after issuing %s: %v", id, err))
			}
			a.logger.LogAllocator("ALLOCATE", id)
			return id, nil
		}

		claimed, err := a.claim(ctx, claimer, id)
		if err != nil {
			delete(a.used, id)
			a.available = append(a.available, id)
			return "", fmt.Errorf("claim order id %s: %w", id, err)
		}
		if claimed {
			a.logger.LogAllocator("ALLOCATE", id)
			return id, nil
		}
		a.logger.Debug("ORDER_ID", fmt.Sprintf("Order id %s already claimed by another process, skipping", id))
	}
}

// Reset forgets every issued id and reshuffles the full pool. It does not touch orders, so it must
// only run when no order still references a previously issued id.
func (a *Allocator) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.initialized = true
	return a.resetLocked(ctx)
}

// MarkUsed records ids that were issued elsewhere (e.g. restored from a backup).
func (a *Allocator) MarkUsed(ctx context.Context, ids ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	claimer, shared := a.store.(Claimer)

	added := 0
	for _, id := range ids {
		if !Valid(id) {
			continue
		}
		if _, taken := a.used[id]; taken {
			continue
		}
		a.used[id] = struct{}{}
		if i := slices.Index(a.available, id); i >= 0 {
			a.available = slices.Delete(a.available, i, i+1)
		}
		added++

		if shared {
			if _, err := a.claim(ctx, claimer, id); err != nil {
				return fmt.Errorf("claim order id %s: %w", id, err)
			}
		}
	}

	if added == 0 || shared {
		return nil
	}
	return a.saveLocked(ctx)
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	used := len(a.used)
	return Stats{
		Total:      PoolSize,
		Used:       used,
		Available:  len(a.available),
		Percentage: int(math.Round(float64(used) / float64(PoolSize) * 100)),
		Resets:     a.resets,
	}
}

func (a *Allocator) IsAvailable(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, taken := a.used[id]
	return Valid(id) && !taken
}

// UsedIDs returns the issued ids in ascending order.
func (a *Allocator) UsedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.sortedUsedLocked()
}

func (a *Allocator) resetLocked(ctx context.Context) error {
	a.used = make(map[string]struct{})
	a.available = a.shuffledPool()
	a.resets++

	a.logger.LogAllocator("RESET", fmt.Sprintf("pool regenerated with %d ids (reset #%d)", len(a.available), a.resets))
	return a.saveLocked(ctx)
}

func (a *Allocator) saveLocked(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.SaveUsedIDs(ctx, a.sortedUsedLocked())
}

func (a *Allocator) claim(ctx context.Context, claimer Claimer, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return claimer.Claim(ctx, id)
}

// All ids are three digits wide, so lexical order is numeric order.
func (a *Allocator) sortedUsedLocked() []string {
	ids := make([]string, 0, len(a.used))
	for id := range a.used {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// shuffledPool returns 101..999 in Fisher-Yates order.
func (a *Allocator) shuffledPool() []string {
	pool := make([]string, 0, PoolSize)
	for i := MinID; i <= MaxID; i++ {
		pool = append(pool, strconv.Itoa(i))
	}
	for i := len(pool) - 1; i > 0; i-- {
		j := a.intN(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool
}
