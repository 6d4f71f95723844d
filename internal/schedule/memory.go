package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryStore serves catalogs held in memory. Used for local demos and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	catalogs map[string]*Catalog
}

func NewMemoryStore(catalogs ...Catalog) (*MemoryStore, error) {
	s := &MemoryStore{catalogs: make(map[string]*Catalog)}
	for _, c := range catalogs {
		if err := s.Put(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadMemoryStore reads a JSON array of catalogs from path.
func LoadMemoryStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schedule: read seed catalog: %w", err)
	}
	var catalogs []Catalog
	if err := json.Unmarshal(data, &catalogs); err != nil {
		return nil, fmt.Errorf("schedule: decode seed catalog: %w", err)
	}
	return NewMemoryStore(catalogs...)
}

// Put adds or replaces a salon catalog.
func (s *MemoryStore) Put(c Catalog) error {
	if c.Salon.ID == "" {
		return fmt.Errorf("schedule: catalog missing salon id")
	}
	if err := c.Normalize(); err != nil {
		return err
	}
	s.mu.Lock()
	s.catalogs[c.Salon.ID] = &c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Catalog(_ context.Context, salonID string) (*Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.catalogs[salonID]
	if !ok {
		return nil, ErrSalonNotFound
	}
	return c, nil
}

// Catalogs returns every stored catalog ordered by salon id.
func (s *MemoryStore) Catalogs() []*Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Catalog, 0, len(s.catalogs))
	for _, c := range s.catalogs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Salon.ID < out[j].Salon.ID })
	return out
}
