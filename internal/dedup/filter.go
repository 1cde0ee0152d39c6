// Package dedup tracks record fingerprints across runs.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"route-pipeline/internal/model"

	"github.com/shopspring/decimal"
)

// FingerprintStore persists fingerprints between runs.
type FingerprintStore interface {
	LoadFingerprints(ctx context.Context) ([]string, error)
	SaveFingerprints(ctx context.Context, fps []string) error
}

// Filter is the in-memory fingerprint set for one run.
type Filter struct {
	store FingerprintStore

	mu    sync.Mutex
	seen  map[string]struct{}
	added map[string]struct{}
}

// NewFilter creates a filter backed by store. A nil store keeps fingerprints in memory only.
func NewFilter(store FingerprintStore) *Filter {
	return &Filter{
		store: store,
		seen:  make(map[string]struct{}),
		added: make(map[string]struct{}),
	}
}

// Load replaces the in-memory set with the persisted fingerprints.
func (f *Filter) Load(ctx context.Context) error {
	var fps []string
	if f.store != nil {
		var err error
		fps, err = f.store.LoadFingerprints(ctx)
		if err != nil {
			return fmt.Errorf("load fingerprints: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]struct{}, len(fps))
	f.added = make(map[string]struct{})
	for _, fp := range fps {
		f.seen[fp] = struct{}{}
	}
	return nil
}

// Claim records fp and reports whether it was new.
func (f *Filter) Claim(fp string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[fp]; ok {
		return false
	}
	f.seen[fp] = struct{}{}
	f.added[fp] = struct{}{}
	return true
}

// Release forgets a fingerprint claimed during this run.
func (f *Filter) Release(fp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.added[fp]; !ok {
		return
	}
	delete(f.added, fp)
	delete(f.seen, fp)
}

// Seen reports whether fp is known.
func (f *Filter) Seen(fp string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[fp]
	return ok
}

// Len returns the number of known fingerprints.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Flush writes fingerprints claimed since Load to the store.
func (f *Filter) Flush(ctx context.Context) error {
	f.mu.Lock()
	fps := make([]string, 0, len(f.added))
	for fp := range f.added {
		fps = append(fps, fp)
	}
	f.mu.Unlock()

	if f.store == nil || len(fps) == 0 {
		return nil
	}
	sort.Strings(fps)
	if err := f.store.SaveFingerprints(ctx, fps); err != nil {
		return fmt.Errorf("flush fingerprints: %w", err)
	}

	f.mu.Lock()
	for _, fp := range fps {
		delete(f.added, fp)
	}
	f.mu.Unlock()
	return nil
}

// Fingerprint hashes (route_id, route_date, driver_name), or the full record when route_id is absent.
func Fingerprint(rec model.CanonicalRecord) string {
	h := sha256.New()
	if id := rec.String(model.FieldRouteID); id != "" {
		fmt.Fprintf(h, "%s|%s|%s",
			strings.ToLower(strings.TrimSpace(id)),
			formatValue(rec[model.FieldRouteDate]),
			strings.ToLower(strings.TrimSpace(rec.String(model.FieldDriverName))))
	} else {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "%s=%s;", k, formatValue(rec[k]))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case decimal.Decimal:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// MemoryStore is a FingerprintStore held in memory.
type MemoryStore struct {
	mu  sync.Mutex
	fps map[string]struct{}
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fps: make(map[string]struct{})}
}

func (m *MemoryStore) LoadFingerprints(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.fps))
	for fp := range m.fps {
		out = append(out, fp)
	}
	return out, nil
}

func (m *MemoryStore) SaveFingerprints(_ context.Context, fps []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fp := range fps {
		m.fps[fp] = struct{}{}
	}
	return nil
}
