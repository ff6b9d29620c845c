// ABOUTME: Document model over the append-only store
// ABOUTME: Edits re-segment text, reuse unchanged subtrees and bubble new roots up

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/texttree/pkg/idgen"
	"github.com/nainya/texttree/pkg/store"
)

// maxDepth bounds every upward walk: word, sentence, paragraph, document
const maxDepth = 4

// Model is the editing and query API over a Store. Elements are never
// mutated; every edit creates new elements up to a new root and records a
// new version. A Model is not safe for concurrent use: it expects to be the
// store's only writer and callers serialize access.
type Model struct {
	store store.Store

	// parents maps child id to parent id for the current version's tree.
	// It is rebuilt on version switch and only grows during edits.
	parents map[string]string

	newID     idgen.Generator
	now       func() time.Time
	log       zerolog.Logger
	rec       Recorder
	threshold float64
	seed      string
}

// New binds a model to s. An empty store gets an empty document as
// version 1; seed text (WithSeedText) fills a root that has no children.
func New(s store.Store, opts ...Option) (*Model, error) {
	m := defaults()
	m.store = s
	for _, opt := range opts {
		opt(m)
	}

	if _, ok := s.CurrentVersion(); !ok {
		root := store.Element{ID: m.newID(), Kind: store.KindDocument, CreatedAt: m.now()}
		if _, err := s.AddElement(root); err != nil {
			return nil, fmt.Errorf("create document root: %w", err)
		}
		if _, err := s.AddVersion(root.ID); err != nil {
			return nil, fmt.Errorf("create initial version: %w", err)
		}
		m.log.Info().Str("root", root.ID).Msg("Created empty document")
	}
	m.rebuildParents()

	root, err := m.RootElement()
	if err != nil {
		return nil, err
	}
	if len(root.Children) == 0 && strings.TrimSpace(m.seed) != "" {
		if _, err := m.UpdateElement(root.ID, m.seed); err != nil {
			return nil, fmt.Errorf("seed document: %w", err)
		}
	}
	return m, nil
}

// Store returns the backing store
func (m *Model) Store() store.Store {
	return m.store
}

// RootElement returns the document element of the current version
func (m *Model) RootElement() (store.Element, error) {
	v, err := m.CurrentVersion()
	if err != nil {
		return store.Element{}, err
	}
	return m.Element(v.RootID)
}

// Element returns a stored element
func (m *Model) Element(id string) (store.Element, error) {
	el, ok := m.store.GetElement(id)
	if !ok {
		return store.Element{}, fmt.Errorf("%w: %s", store.ErrElementNotFound, id)
	}
	return el, nil
}

// ComputeFullContents reconstructs the text of any element from its words
func (m *Model) ComputeFullContents(id string) (string, error) {
	el, err := m.Element(id)
	if err != nil {
		return "", err
	}
	if el.Kind == store.KindWord {
		return el.Contents, nil
	}

	texts := make([]string, len(el.Children))
	for i, cid := range el.Children {
		if texts[i], err = m.ComputeFullContents(cid); err != nil {
			return "", err
		}
	}
	return strings.Join(texts, grammar[el.Kind].join), nil
}

// CurrentVersion returns the current version record
func (m *Model) CurrentVersion() (store.Version, error) {
	n, ok := m.store.CurrentVersion()
	if !ok {
		return store.Version{}, store.ErrNoCurrentVersion
	}
	v, ok := m.store.GetVersion(n)
	if !ok {
		return store.Version{}, fmt.Errorf("%w: %d", store.ErrVersionNotFound, n)
	}
	return v, nil
}

// CurrentVersionNumber returns the current version number, 0 if none
func (m *Model) CurrentVersionNumber() int {
	n, _ := m.store.CurrentVersion()
	return n
}

// LatestVersionNumber returns the highest version ever allocated
func (m *Model) LatestVersionNumber() int {
	return m.store.LatestVersion()
}

// SwitchToVersion makes n current and rebuilds the parent cache for its tree
func (m *Model) SwitchToVersion(n int) error {
	if err := m.store.SwitchCurrentVersion(n); err != nil {
		return err
	}
	m.rebuildParents()
	m.log.Debug().Int("version", n).Int("cached_parents", len(m.parents)).Msg("Switched version")
	return nil
}

// Parent returns the parent of id in the current tree
func (m *Model) Parent(id string) (string, bool) {
	p, ok := m.parents[id]
	return p, ok
}

// rebuildParents recomputes the parent cache from the current root
func (m *Model) rebuildParents() {
	m.parents = make(map[string]string, len(m.parents))

	root, err := m.RootElement()
	if err != nil {
		return
	}
	var walk func(id, parent string, depth int)
	walk = func(id, parent string, depth int) {
		m.parents[id] = parent
		el, ok := m.store.GetElement(id)
		if !ok || depth >= maxDepth {
			if !ok {
				m.log.Warn().Str("element", id).Str("parent", parent).Msg("Tree references a missing element")
			}
			return
		}
		for _, cid := range el.Children {
			walk(cid, id, depth+1)
		}
	}
	for _, cid := range root.Children {
		walk(cid, root.ID, 1)
	}
}

// requireCurrent checks, through the parent cache, that id belongs to the
// current version's tree
func (m *Model) requireCurrent(id string) error {
	root, err := m.RootElement()
	if err != nil {
		return err
	}
	cur := id
	for i := 0; i <= maxDepth; i++ {
		if cur == root.ID {
			return nil
		}
		parent, ok := m.parents[cur]
		if !ok {
			break
		}
		cur = parent
	}
	return fmt.Errorf("%w: %s", store.ErrNotInCurrentVersion, id)
}
