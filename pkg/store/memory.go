package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// It is safe for concurrent use, although the document model is expected to
// be its only writer.
type MemoryStore struct {
	mu sync.RWMutex

	elements     map[string]Element
	elementOrder []string

	annotations     map[string]Annotation
	annotationOrder []string
	mappings        []ElementAnnotation

	versions    map[int]Version
	current     int // 0 = none
	nextVersion int

	now func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		elements:    make(map[string]Element),
		annotations: make(map[string]Annotation),
		versions:    make(map[int]Version),
		nextVersion: 1,
		now:         now,
	}
}

// AddElement stores a new element
func (m *MemoryStore) AddElement(el Element) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkElementLocked(el); err != nil {
		return "", err
	}
	m.putElementLocked(el)
	return el.ID, nil
}

// AddElements stores several elements after validating all of them
func (m *MemoryStore) AddElements(els []Element) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(els))
	for _, el := range els {
		if err := m.checkElementLocked(el); err != nil {
			return nil, err
		}
		if _, dup := seen[el.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, el.ID)
		}
		seen[el.ID] = struct{}{}
	}

	ids := make([]string, 0, len(els))
	for _, el := range els {
		m.putElementLocked(el)
		ids = append(ids, el.ID)
	}
	return ids, nil
}

func (m *MemoryStore) checkElementLocked(el Element) error {
	if err := validateElement(el); err != nil {
		return fmt.Errorf("%w: %s %q", err, el.Kind, el.ID)
	}
	if _, exists := m.elements[el.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, el.ID)
	}
	return nil
}

func (m *MemoryStore) putElementLocked(el Element) {
	m.elements[el.ID] = el.Clone()
	m.elementOrder = append(m.elementOrder, el.ID)
}

// GetElement retrieves an element by id
func (m *MemoryStore) GetElement(id string) (Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	el, ok := m.elements[id]
	if !ok {
		return Element{}, false
	}
	return el.Clone(), true
}

// Elements returns all elements in insertion order
func (m *MemoryStore) Elements() []Element {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Element, 0, len(m.elementOrder))
	for _, id := range m.elementOrder {
		out = append(out, m.elements[id].Clone())
	}
	return out
}

// AddAnnotation stores an annotation and opens its mapping to targetID
func (m *MemoryStore) AddAnnotation(ann Annotation, targetID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAnnotationLocked(ann, targetID); err != nil {
		return "", err
	}
	m.putAnnotationLocked(ann, ElementAnnotation{
		ElementID:    targetID,
		AnnotationID: ann.ID,
		ValidFrom:    m.current,
		ValidThrough: Open(),
	})
	return ann.ID, nil
}

func (m *MemoryStore) checkAnnotationLocked(ann Annotation, targetID string) error {
	if ann.ID == "" || !ann.Kind.Valid() || !ann.Status.Valid() {
		return fmt.Errorf("%w: %q kind=%q status=%q", ErrInvalidAnnotation, ann.ID, ann.Kind, ann.Status)
	}
	if _, exists := m.annotations[ann.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, ann.ID)
	}
	if _, ok := m.elements[targetID]; !ok {
		return fmt.Errorf("%w: annotation target %q", ErrElementNotFound, targetID)
	}
	return nil
}

func (m *MemoryStore) putAnnotationLocked(ann Annotation, mapping ElementAnnotation) {
	m.annotations[ann.ID] = ann
	m.annotationOrder = append(m.annotationOrder, ann.ID)
	m.mappings = append(m.mappings, mapping)
}

// GetAnnotation retrieves an annotation by id
func (m *MemoryStore) GetAnnotation(id string) (Annotation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ann, ok := m.annotations[id]
	return ann, ok
}

// UpdateElementAnnotationValidity closes the open mapping for the pair
func (m *MemoryStore) UpdateElementAnnotationValidity(elementID, annotationID string, through int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.openMappingLocked(elementID, annotationID)
	if i < 0 {
		return fmt.Errorf("%w: element %s annotation %s", ErrMappingNotFound, elementID, annotationID)
	}
	m.mappings[i].ValidThrough = Closed(through)
	return nil
}

func (m *MemoryStore) openMappingLocked(elementID, annotationID string) int {
	for i, ea := range m.mappings {
		if ea.ElementID == elementID && ea.AnnotationID == annotationID && ea.ValidThrough.IsOpen() {
			return i
		}
	}
	return -1
}

// AddVersion allocates the next version number and makes it current
func (m *MemoryStore) AddVersion(rootID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.elements[rootID]; !ok {
		return 0, fmt.Errorf("%w: version root %s", ErrElementNotFound, rootID)
	}

	n := m.nextVersion
	m.putVersionLocked(Version{
		ID:            strconv.Itoa(n),
		Number:        n,
		RootID:        rootID,
		FormatVersion: FormatVersion,
		CreatedAt:     m.now(),
	})
	return n, nil
}

func (m *MemoryStore) putVersionLocked(v Version) {
	m.versions[v.Number] = v
	m.current = v.Number
	if v.Number >= m.nextVersion {
		m.nextVersion = v.Number + 1
	}
}

// SwitchCurrentVersion repoints the current version without creating data
func (m *MemoryStore) SwitchCurrentVersion(number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.versions[number]; !ok {
		return fmt.Errorf("%w: %d", ErrVersionNotFound, number)
	}
	m.current = number
	return nil
}

// CurrentVersion returns the current version number
func (m *MemoryStore) CurrentVersion() (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current, m.current > 0
}

// LatestVersion returns the highest allocated version number
func (m *MemoryStore) LatestVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nextVersion - 1
}

// GetVersion retrieves a version by number
func (m *MemoryStore) GetVersion(number int) (Version, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[number]
	return v, ok
}

// Versions returns every version ordered by number
func (m *MemoryStore) Versions() []Version {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Version, 0, len(m.versions))
	for _, v := range m.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Annotations returns all annotations in insertion order
func (m *MemoryStore) Annotations() []Annotation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Annotation, 0, len(m.annotationOrder))
	for _, id := range m.annotationOrder {
		out = append(out, m.annotations[id])
	}
	return out
}

// ElementAnnotations returns a snapshot of all mappings
func (m *MemoryStore) ElementAnnotations() []ElementAnnotation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]ElementAnnotation(nil), m.mappings...)
}

// restoreAnnotation inserts an annotation with an already-known mapping
func (m *MemoryStore) restoreAnnotation(ann Annotation, mapping ElementAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAnnotationLocked(ann, mapping.ElementID); err != nil {
		return err
	}
	if mapping.AnnotationID != ann.ID {
		return fmt.Errorf("%w: mapping for %s restored with annotation %s", ErrInvalidAnnotation, mapping.AnnotationID, ann.ID)
	}
	m.putAnnotationLocked(ann, mapping)
	return nil
}

// restoreVersion inserts a version record exactly as it was allocated
func (m *MemoryStore) restoreVersion(v Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.elements[v.RootID]; !ok {
		return fmt.Errorf("%w: version root %s", ErrElementNotFound, v.RootID)
	}
	if _, exists := m.versions[v.Number]; exists || v.Number != m.nextVersion {
		return fmt.Errorf("%w: version %d restored out of sequence (next %d)", ErrInvalidArgument, v.Number, m.nextVersion)
	}
	m.putVersionLocked(v)
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
