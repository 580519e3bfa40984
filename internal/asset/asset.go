// Package asset implements the bounded asset store (C6): an LRU-evicted
// map keyed by asset id, with secondary-key indices and per-type counts,
// grounded on spec.md §4.6 and original_source/agent/asset.{hpp,cpp}.
package asset

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Asset is one stored asset document (spec.md §3).
type Asset struct {
	ID         string
	Type       string
	DeviceUUID string
	Timestamp  time.Time
	Removed    bool
	Body       string
	Keys       map[string]string // secondary-index key -> value, e.g. Location -> slot
}

// ChangeEmitter is the narrow slice of internal/buffer the asset store
// needs: appending the device's ASSET_CHANGED/ASSET_REMOVED data items.
// Kept as an interface so the store has no import-cycle dependency on
// internal/buffer or internal/model.
type ChangeEmitter interface {
	EmitAssetChanged(deviceUUID, value string, t time.Time)
	EmitAssetRemoved(deviceUUID, value string, t time.Time)
}

type entry struct {
	asset *Asset
	elem  *list.Element
}

// Store is the process-wide asset store. A single mutex covers the map,
// the LRU list, the secondary indices, and the type counts; per spec.md
// §4.6 it is released before any buffer-append call so the observation
// append (which takes the sequence lock) cannot deadlock with it.
type Store struct {
	mu         sync.Mutex
	maxAssets  int
	byID       map[string]*entry
	lru        *list.List // front = MRU, back = LRU
	secondary  map[string]map[string]string // indexName -> keyValue -> assetID
	typeCounts map[string]int

	emitter ChangeEmitter
}

// New returns an empty Store bounded at maxAssets.
func New(maxAssets int, emitter ChangeEmitter) *Store {
	return &Store{
		maxAssets:  maxAssets,
		byID:       make(map[string]*entry),
		lru:        list.New(),
		secondary:  make(map[string]map[string]string),
		typeCounts: make(map[string]int),
		emitter:    emitter,
	}
}

// Add inserts or replaces an asset, moving it to MRU. If the insert grows
// the store past maxAssets, the LRU asset is evicted (pruned from every
// secondary index, its type count decremented). Emits ASSET_CHANGED via
// the lock-free path described in §4.6 (lock released before emitting).
func (s *Store) Add(deviceUUID, id, typ, body string, keys map[string]string, t time.Time) bool {
	s.mu.Lock()
	var evictedID, evictedType string
	evicted := false

	if e, ok := s.byID[id]; ok {
		s.unindex(id, e.asset.Keys)
		e.asset.Type = typ
		e.asset.Body = body
		e.asset.Keys = keys
		e.asset.Timestamp = t
		e.asset.Removed = false
		s.lru.MoveToFront(e.elem)
		s.index(id, keys)
	} else {
		a := &Asset{ID: id, Type: typ, DeviceUUID: deviceUUID, Body: body, Keys: keys, Timestamp: t}
		elem := s.lru.PushFront(id)
		s.byID[id] = &entry{asset: a, elem: elem}
		s.typeCounts[typ]++
		s.index(id, keys)

		if s.maxAssets > 0 && len(s.byID) > s.maxAssets {
			back := s.lru.Back()
			evictedID = back.Value.(string)
			if ev, ok := s.byID[evictedID]; ok {
				evictedType = ev.asset.Type
				s.unindex(evictedID, ev.asset.Keys)
				s.typeCounts[evictedType]--
				delete(s.byID, evictedID)
			}
			s.lru.Remove(back)
			evicted = true
		}
	}
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EmitAssetChanged(deviceUUID, fmt.Sprintf("%s|%s", typ, id), t)
	}
	_ = evicted
	_ = evictedID
	_ = evictedType
	return true
}

func (s *Store) index(id string, keys map[string]string) {
	for idx, val := range keys {
		m, ok := s.secondary[idx]
		if !ok {
			m = make(map[string]string)
			s.secondary[idx] = m
		}
		m[val] = id
	}
}

func (s *Store) unindex(id string, keys map[string]string) {
	for idx, val := range keys {
		if m, ok := s.secondary[idx]; ok {
			if m[val] == id {
				delete(m, val)
			}
		}
	}
}

// Update applies key/value patches to an existing asset's Keys (or, for
// XML-fragment patches, the caller pre-renders the new Body and passes it
// through fields["__body__"]), moves it to MRU, and emits ASSET_CHANGED.
func (s *Store) Update(deviceUUID, id string, fields map[string]string, t time.Time) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if body, ok := fields["__body__"]; ok {
		e.asset.Body = body
	}
	s.unindex(id, e.asset.Keys)
	for k, v := range fields {
		if k == "__body__" {
			continue
		}
		if e.asset.Keys == nil {
			e.asset.Keys = make(map[string]string)
		}
		e.asset.Keys[k] = v
	}
	s.index(id, e.asset.Keys)
	e.asset.Timestamp = t
	s.lru.MoveToFront(e.elem)
	typ := e.asset.Type
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EmitAssetChanged(deviceUUID, fmt.Sprintf("%s|%s", typ, id), t)
	}
	return true
}

// Remove marks id removed without evicting it from the LRU list, emits
// ASSET_REMOVED, and — if the device's current ASSET_CHANGED value
// references this id — additionally clears it with
// ASSET_CHANGED = "type|UNAVAILABLE" (spec.md §4.6, §9's documented
// asymmetry versus RemoveAll).
func (s *Store) Remove(deviceUUID, id string, currentAssetChanged string, t time.Time) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	e.asset.Removed = true
	typ := e.asset.Type
	s.mu.Unlock()

	if s.emitter == nil {
		return true
	}
	s.emitter.EmitAssetRemoved(deviceUUID, fmt.Sprintf("%s|%s", typ, id), t)
	if currentAssetChanged == fmt.Sprintf("%s|%s", typ, id) {
		s.emitter.EmitAssetChanged(deviceUUID, fmt.Sprintf("%s|UNAVAILABLE", typ), t)
	}
	return true
}

// RemoveAll marks every non-removed asset of typ removed, emitting one
// ASSET_REMOVED per asset. Unlike Remove, it never clears ASSET_CHANGED —
// the documented asymmetry spec.md §9 calls out as an open question kept
// rather than "fixed".
func (s *Store) RemoveAll(deviceUUID, typ string, t time.Time) int {
	s.mu.Lock()
	var ids []string
	for id, e := range s.byID {
		if e.asset.Type == typ && !e.asset.Removed {
			e.asset.Removed = true
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	if s.emitter != nil {
		for _, id := range ids {
			s.emitter.EmitAssetRemoved(deviceUUID, fmt.Sprintf("%s|%s", typ, id), t)
		}
	}
	return len(ids)
}

// Get returns a copy-free pointer to the stored asset (callers must not
// mutate it).
func (s *Store) Get(id string) (*Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.asset, true
}

// ByKey resolves a secondary-index lookup, e.g. index "Location", value
// "1" -> the asset id currently holding that slot.
func (s *Store) ByKey(index, value string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.secondary[index]
	if !ok {
		return "", false
	}
	id, ok := m[value]
	return id, ok
}

// List returns every asset, optionally filtered by type and/or removed
// state, most-recently-used first.
func (s *Store) List(typ string, includeRemoved bool, limit int) []*Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Asset
	for e := s.lru.Front(); e != nil; e = e.Next() {
		id := e.Value.(string)
		ent, ok := s.byID[id]
		if !ok {
			continue
		}
		if typ != "" && ent.asset.Type != typ {
			continue
		}
		if ent.asset.Removed && !includeRemoved {
			continue
		}
		out = append(out, ent.asset)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Count returns the number of stored assets of typ, or the total asset
// count if typ is empty. Assets marked removed still count until evicted.
func (s *Store) Count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typ == "" {
		return len(s.byID)
	}
	return s.typeCounts[typ]
}
