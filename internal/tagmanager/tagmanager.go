// Package tagmanager implements the Tag Manager (spec.md §4.2, C2): the
// single point of indirection between symbolic tags, internal values, and
// externally addressed points, plus the per-class pending-update queues
// that are the only channel protocol adapters use to push values into the
// scan cycle.
package tagmanager

import (
	"sync"
	"time"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/metrics"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagstore"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

// Class is a tag's classification. A tag is always in exactly one class.
type Class int

const (
	Binary Class = iota
	Analog
)

func (c Class) String() string {
	if c == Binary {
		return "binary"
	}
	return "analog"
}

// nowFn is overridable in tests.
var nowFn = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Manager is the Tag Manager, C2.
type Manager struct {
	internal *tagstore.Store
	external *tagstore.Store

	metrics *metrics.Registry

	mu             sync.RWMutex // guards tagToPoint, externalPoints, classification
	tagToPoint     map[string]string // tag -> external point id
	externalPoints map[string]string // point id -> external store key
	tagClass       map[string]Class
	binaryTags     []string
	analogTags     []string

	binaryMu      sync.RWMutex
	updatedBinary map[string]bool

	analogMu      sync.RWMutex
	updatedAnalog map[string]float64
}

// New returns an empty Manager. m may be nil to disable instrumentation.
func New(m *metrics.Registry) *Manager {
	return &Manager{
		internal:       tagstore.New(),
		external:       tagstore.New(),
		metrics:        m,
		tagToPoint:     make(map[string]string),
		externalPoints: make(map[string]string),
		tagClass:       make(map[string]Class),
		updatedBinary:  make(map[string]bool),
		updatedAnalog:  make(map[string]float64),
	}
}

// InternalStore returns the backing store for internal tags (read-mostly
// access for protocol adapters that need a Snapshot).
func (m *Manager) InternalStore() *tagstore.Store { return m.internal }

// ExternalStore returns the backing store for externally addressed points.
func (m *Manager) ExternalStore() *tagstore.Store { return m.external }

// Metrics returns the registry this Manager was constructed with, or nil if
// instrumentation is disabled. Protocol adapters share it rather than
// carrying their own handle, so a PDU counted against "modbus" and a tag
// write counted against "binary" land in the same registry.
func (m *Manager) Metrics() *metrics.Registry { return m.metrics }

// AddInternalTag creates an internal tag with the given initial value and
// classification.
func (m *Manager) AddInternalTag(tag string, initial tagvalue.Value, class Class) {
	m.internal.Add(tag, initial)
	m.classify(tag, class)
}

// AddExternalData creates external_store[storeKey] = initial and records
// external_points[id] = storeKey, per spec.md §4.2's add_external_data.
func (m *Manager) AddExternalData(id, storeKey string, initial tagvalue.Value) {
	m.external.Add(storeKey, initial)
	m.mu.Lock()
	m.externalPoints[id] = storeKey
	m.mu.Unlock()
}

// AddTagToPointMapping maps tag to the external point id. It fails (returns
// false, no state change) if id is not already present in external_points.
func (m *Manager) AddTagToPointMapping(tag, id string, class Class) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.externalPoints[id]; !ok {
		return false
	}
	m.tagToPoint[tag] = id
	m.classifyLocked(tag, class)
	return true
}

func (m *Manager) classify(tag string, class Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifyLocked(tag, class)
}

// classifyLocked assigns tag to class, removing it from the other class's
// list first so the two lists stay disjoint (spec.md §3 invariant).
func (m *Manager) classifyLocked(tag string, class Class) {
	if prev, ok := m.tagClass[tag]; ok && prev != class {
		m.removeFromListLocked(prev, tag)
	}
	m.tagClass[tag] = class
	switch class {
	case Binary:
		if !containsString(m.binaryTags, tag) {
			m.binaryTags = append(m.binaryTags, tag)
		}
	case Analog:
		if !containsString(m.analogTags, tag) {
			m.analogTags = append(m.analogTags, tag)
		}
	}
}

func (m *Manager) removeFromListLocked(class Class, tag string) {
	var list *[]string
	switch class {
	case Binary:
		list = &m.binaryTags
	case Analog:
		list = &m.analogTags
	}
	for i, t := range *list {
		if t == tag {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// BinaryTags returns the current binary tag classification list.
func (m *Manager) BinaryTags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.binaryTags))
	copy(out, m.binaryTags)
	return out
}

// AnalogTags returns the current analog tag classification list.
func (m *Manager) AnalogTags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.analogTags))
	copy(out, m.analogTags)
	return out
}

// ClassOf reports tag's classification and whether tag has been classified
// at all.
func (m *Manager) ClassOf(tag string) (Class, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.tagClass[tag]
	return c, ok
}

// resolve returns the external store key for tag if tag is mapped to a
// point, following at most one level of indirection (spec.md §4.2).
func (m *Manager) resolve(tag string) (storeKey string, isExternal bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tagToPoint[tag]
	if !ok {
		return "", false
	}
	key, ok := m.externalPoints[id]
	if !ok {
		return "", false
	}
	return key, true
}

// GetByTag reads the current value of tag, resolving the alias/point
// indirection if present.
func (m *Manager) GetByTag(tag string) tagvalue.Value {
	if key, ok := m.resolve(tag); ok {
		return m.external.Get(key)
	}
	return m.internal.Get(tag)
}

// TimestampByTag reads the last-write timestamp of tag.
func (m *Manager) TimestampByTag(tag string) float64 {
	if key, ok := m.resolve(tag); ok {
		return m.external.Timestamp(key)
	}
	return m.internal.Timestamp(tag)
}

// SetByTag writes value to tag, resolving the alias/point indirection if
// present, and stamping the wall-clock timestamp on whichever store
// (external or internal) receives the write. Returns false if the
// destination key does not exist in its backing store.
func (m *Manager) SetByTag(tag string, value tagvalue.Value) bool {
	if key, ok := m.resolve(tag); ok {
		return m.external.Set(key, value, nowFn())
	}
	return m.internal.Set(tag, value, nowFn())
}

// GetByPoint reads the external store directly by its storage key.
func (m *Manager) GetByPoint(storeKey string) tagvalue.Value {
	return m.external.Get(storeKey)
}

// SetByPoint writes value into the external store at storeKey, stamping
// timestamp = now(), per spec.md §4.2 point 3.
func (m *Manager) SetByPoint(storeKey string, value tagvalue.Value) bool {
	return m.external.Set(storeKey, value, nowFn())
}

// AddUpdatedBinary enqueues a pending binary update from a protocol adapter.
func (m *Manager) AddUpdatedBinary(tag string, status bool) {
	m.binaryMu.Lock()
	m.updatedBinary[tag] = status
	m.binaryMu.Unlock()
	if m.metrics != nil {
		m.metrics.IncTagWriteBinary()
	}
}

// AddUpdatedAnalog enqueues a pending analog update from a protocol adapter.
func (m *Manager) AddUpdatedAnalog(tag string, value float64) {
	m.analogMu.Lock()
	m.updatedAnalog[tag] = value
	m.analogMu.Unlock()
	if m.metrics != nil {
		m.metrics.IncTagWriteAnalog()
	}
}

// HasPendingBinary reports whether tag already has a pending binary update.
func (m *Manager) HasPendingBinary(tag string) bool {
	m.binaryMu.RLock()
	defer m.binaryMu.RUnlock()
	_, ok := m.updatedBinary[tag]
	return ok
}

// HasPendingAnalog reports whether tag already has a pending analog update.
func (m *Manager) HasPendingAnalog(tag string) bool {
	m.analogMu.RLock()
	defer m.analogMu.RUnlock()
	_, ok := m.updatedAnalog[tag]
	return ok
}

// UpdateInternalData writes every pending update whose tag exists in the
// internal store, per spec.md §4.4 step 4.
func (m *Manager) UpdateInternalData() {
	m.binaryMu.RLock()
	binary := make(map[string]bool, len(m.updatedBinary))
	for k, v := range m.updatedBinary {
		binary[k] = v
	}
	m.binaryMu.RUnlock()
	for tag, v := range binary {
		if m.internal.Has(tag) {
			m.internal.Set(tag, tagvalue.Bool(v), nowFn())
		}
	}

	m.analogMu.RLock()
	analog := make(map[string]float64, len(m.updatedAnalog))
	for k, v := range m.updatedAnalog {
		analog[k] = v
	}
	m.analogMu.RUnlock()
	for tag, v := range analog {
		if m.internal.Has(tag) {
			m.internal.Set(tag, tagvalue.Float64(v), nowFn())
		}
	}
}

// ClearUpdatedTags empties both pending maps. Each map is cleared under its
// own class lock (binary under binaryMu, analog under analogMu) — see
// DESIGN.md's Open Question #1 on the source's lock transposition.
func (m *Manager) ClearUpdatedTags() {
	m.binaryMu.Lock()
	m.updatedBinary = make(map[string]bool)
	m.binaryMu.Unlock()

	m.analogMu.Lock()
	m.updatedAnalog = make(map[string]float64)
	m.analogMu.Unlock()
}

// PendingDepths reports the current size of each pending map, for metrics
// and the scan loop's debug dump.
func (m *Manager) PendingDepths() (binary, analog int) {
	m.binaryMu.RLock()
	binary = len(m.updatedBinary)
	m.binaryMu.RUnlock()
	m.analogMu.RLock()
	analog = len(m.updatedAnalog)
	m.analogMu.RUnlock()
	return
}

// Snapshot returns a read-only copy of both backing stores, for the command
// interface's QUERY and for debug dumps.
func (m *Manager) Snapshot() (internal, external map[string]tagstore.Record) {
	return m.internal.Snapshot(), m.external.Snapshot()
}
