package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Backend with the same semantics as the redis
// one. Stream IDs use the redis "<ms>-<seq>" shape so range reads and
// resume tokens behave identically.
type Memory struct {
	mu      sync.Mutex
	strs    map[string]memVal
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	streams map[string][]StreamEntry

	lastStreamMS  int64
	lastStreamSeq int64

	// Now is injectable so TTL expiry is testable without sleeping.
	Now func() time.Time
}

type memVal struct {
	value    string
	expireAt time.Time // zero means no expiry
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		strs:    make(map[string]memVal),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		streams: make(map[string][]StreamEntry),
		Now:     time.Now,
	}
}

func (m *Memory) alive(v memVal) bool {
	return v.expireAt.IsZero() || m.Now().Before(v.expireAt)
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strs[key]
	if !ok || !m.alive(v) {
		delete(m.strs, key)
		return "", false, nil
	}
	return v.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strs[key] = memVal{value: value}
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.strs[key]; ok && m.alive(v) {
		return false, nil
	}
	val := memVal{value: value}
	if ttl > 0 {
		val.expireAt = m.Now().Add(ttl)
	}
	m.strs[key] = val
	return true, nil
}

func (m *Memory) CompareAndDel(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.strs[key]
	if !ok || !m.alive(v) || v.value != value {
		return false, nil
	}
	delete(m.strs, key)
	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.strs, key)
		delete(m.hashes, key)
		delete(m.sets, key)
		delete(m.streams, key)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.strs[key]; ok && m.alive(v) {
		return true, nil
	}
	if h, ok := m.hashes[key]; ok && len(h) > 0 {
		return true, nil
	}
	if s, ok := m.sets[key]; ok && len(s) > 0 {
		return true, nil
	}
	if st, ok := m.streams[key]; ok && len(st) > 0 {
		return true, nil
	}
	return false, nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) HSet(_ context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	var cur int64
	if raw, ok := h[field]; ok && raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &cur); err != nil {
			return 0, fmt.Errorf("hash %s field %s is not an integer: %q", key, field, raw)
		}
	}
	cur += delta
	h[field] = fmt.Sprintf("%d", cur)
	return cur, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(s, member)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sets[key][member]
	return ok, nil
}

func (m *Memory) SCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sets[key])), nil
}

func (m *Memory) XAdd(_ context.Context, key string, maxLen int64, fields map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := m.Now().UnixMilli()
	if ms < m.lastStreamMS {
		ms = m.lastStreamMS
	}
	if ms == m.lastStreamMS {
		m.lastStreamSeq++
	} else {
		m.lastStreamMS = ms
		m.lastStreamSeq = 0
	}
	id := fmt.Sprintf("%d-%d", ms, m.lastStreamSeq)

	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	entries := append(m.streams[key], StreamEntry{ID: id, Fields: copied})
	if maxLen > 0 && int64(len(entries)) > maxLen {
		entries = entries[int64(len(entries))-maxLen:]
	}
	m.streams[key] = entries
	return id, nil
}

func (m *Memory) XRangeAfter(_ context.Context, key, afterID string, count int64) ([]StreamEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StreamEntry
	for _, e := range m.streams[key] {
		if afterID != "" && streamIDLessOrEqual(e.ID, afterID) {
			continue
		}
		out = append(out, e)
		if count > 0 && int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

func (m *Memory) XTail(_ context.Context, key string, count int64) ([]StreamEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.streams[key]
	if count > 0 && int64(len(entries)) > count {
		entries = entries[int64(len(entries))-count:]
	}
	out := make([]StreamEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// streamIDLessOrEqual compares two "<ms>-<seq>" stream IDs.
func streamIDLessOrEqual(a, b string) bool {
	ams, aseq := splitStreamID(a)
	bms, bseq := splitStreamID(b)
	if ams != bms {
		return ams < bms
	}
	return aseq <= bseq
}

func splitStreamID(id string) (int64, int64) {
	var ms, seq int64
	parts := strings.SplitN(id, "-", 2)
	fmt.Sscanf(parts[0], "%d", &ms)
	if len(parts) == 2 {
		fmt.Sscanf(parts[1], "%d", &seq)
	}
	return ms, seq
}
