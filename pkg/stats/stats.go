package stats

import (
	"math"
	"sort"
	"sync"
)

// Service accumulates named counters and value records for one service.
// Safe for concurrent use.
type Service struct {
	name     string
	mu       sync.Mutex
	counters map[string]int64
	values   map[string]*valueRecord
}

type valueRecord struct {
	count int64
	min   float64
	max   float64
	total float64
}

// NewService creates a statistics collector for the named service.
func NewService(name string) *Service {
	return &Service{
		name:     name,
		counters: make(map[string]int64),
		values:   make(map[string]*valueRecord),
	}
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// RecordCounter adds delta to the named counter.
func (s *Service) RecordCounter(name string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
}

// SetCounter overwrites the named counter.
func (s *Service) SetCounter(name string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] = value
}

// RecordValue folds value into the named series.
func (s *Service) RecordValue(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.values[name]
	if !ok {
		r = &valueRecord{min: math.Inf(1), max: math.Inf(-1)}
		s.values[name] = r
	}
	r.count++
	r.total += value
	if value < r.min {
		r.min = value
	}
	if value > r.max {
		r.max = value
	}
}

// Snapshot returns the statistics as a JSON-ready document.
func (s *Service) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := map[string]interface{}{
		"name": s.name,
	}

	if len(s.counters) > 0 {
		counters := map[string]interface{}{}
		for _, name := range sortedKeys(s.counters) {
			counters[name] = s.counters[name]
		}
		doc["counters"] = counters
	}

	if len(s.values) > 0 {
		values := map[string]interface{}{}
		for name, r := range s.values {
			mean := 0.0
			if r.count > 0 {
				mean = r.total / float64(r.count)
			}
			values[name] = map[string]interface{}{
				"count": r.count,
				"min":   r.min,
				"max":   r.max,
				"mean":  mean,
				"total": r.total,
			}
		}
		doc["values"] = values
	}

	return doc
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
