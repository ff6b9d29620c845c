package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nainya/texttree/pkg/reuse"
	"github.com/nainya/texttree/pkg/store"
)

// Edit describes the version a structural edit produced
type Edit struct {
	Version int
	RootID  string

	// Replacements are the ids that took the edited element's place
	// (UpdateElement) or were inserted (AddAfter); empty for deletes
	Replacements []string
}

// editor accumulates the elements created by one edit so they reach the
// store in a single batch right before the new version is recorded
type editor struct {
	m       *Model
	pending []store.Element

	exact, partial, fresh int
}

func (m *Model) begin() *editor {
	return &editor{m: m}
}

// create stages a new element and registers it as its children's parent
func (e *editor) create(kind store.Kind, contents string, children []string) store.Element {
	el := store.Element{
		ID:        e.m.newID(),
		Kind:      kind,
		Children:  children,
		CreatedAt: e.m.now(),
	}
	if kind == store.KindWord {
		el.Contents = contents
	}
	e.pending = append(e.pending, el)
	for _, cid := range children {
		e.m.parents[cid] = el.ID
	}
	return el
}

// commit stores the staged elements and records rootID as a new version
func (e *editor) commit(rootID string) (int, error) {
	if len(e.pending) > 0 {
		if _, err := e.m.store.AddElements(e.pending); err != nil {
			return 0, err
		}
	}
	return e.m.store.AddVersion(rootID)
}

// parse turns text into one or more elements of kind, reusing what it can
// from the element prevID (empty for none).
func (e *editor) parse(text string, kind store.Kind, prevID string) ([]string, error) {
	parts := splitAs(kind, text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no %s in %q", store.ErrEmptyContents, kind, text)
	}

	var prev store.Element
	var prevText string
	if prevID != "" {
		var err error
		if prev, err = e.m.Element(prevID); err != nil {
			return nil, err
		}
		if prevText, err = e.m.ComputeFullContents(prevID); err != nil {
			return nil, err
		}
	}

	if len(parts) > 1 {
		// Only the first part identical to the previous text keeps its
		// identity; every other part is parsed from scratch.
		ids := make([]string, 0, len(parts))
		usedPrev := false
		for _, part := range parts {
			if prevID != "" && !usedPrev && prevText != "" && part == prevText {
				usedPrev = true
				e.exact++
				ids = append(ids, prevID)
				continue
			}
			sub, err := e.parse(part, kind, "")
			if err != nil {
				return nil, err
			}
			ids = append(ids, sub...)
		}
		return ids, nil
	}

	if kind == store.KindWord {
		if prevID != "" && parts[0] == prevText {
			e.exact++
			return []string{prevID}, nil
		}
		return []string{e.create(store.KindWord, parts[0], nil).ID}, nil
	}

	children, err := e.matchChildren(kind, splitAs(childKind(kind), text), prev.Children)
	if err != nil {
		return nil, err
	}
	return []string{e.create(kind, "", children).ID}, nil
}

// matchChildren resolves each new child part to a reused, re-parsed or
// fresh child element
func (e *editor) matchChildren(kind store.Kind, parts []string, prevChildren []string) ([]string, error) {
	ck := childKind(kind)

	old := make([]reuse.Part, len(prevChildren))
	for i, cid := range prevChildren {
		text, err := e.m.ComputeFullContents(cid)
		if err != nil {
			return nil, err
		}
		old[i] = reuse.Part{ID: cid, Text: text}
	}

	var matches []reuse.Match
	if len(old) > 0 {
		matches = reuse.Greedy(old, parts, grammar[ck].tokens, e.m.threshold)
	}

	ids := make([]string, 0, len(parts))
	for i, part := range parts {
		var (
			sub []string
			err error
		)
		switch {
		case matches != nil && matches[i].Exact:
			e.exact++
			sub = []string{old[matches[i].OldIndex].ID}
		case matches != nil && matches[i].Partial():
			e.partial++
			sub, err = e.parse(part, ck, old[matches[i].OldIndex].ID)
		default:
			e.fresh++
			sub, err = e.parse(part, ck, "")
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, sub...)
	}
	return ids, nil
}

// replaceInParent stages a copy of childID's parent with childID swapped
// for replacements. One level only.
func (e *editor) replaceInParent(parentID, childID string, replacements []string) (store.Element, error) {
	parent, err := e.m.Element(parentID)
	if err != nil {
		return store.Element{}, err
	}

	children := make([]string, 0, len(parent.Children)+len(replacements))
	for _, cid := range parent.Children {
		if cid == childID {
			children = append(children, replacements...)
		} else {
			children = append(children, cid)
		}
	}
	return e.create(parent.Kind, "", children), nil
}

// bubbleUp replaces orig with replacements and copies every ancestor up to
// a new document element, returning the new root id
func (e *editor) bubbleUp(orig store.Element, replacements []string) (string, error) {
	if orig.Kind == store.KindDocument {
		if len(replacements) != 1 {
			return "", fmt.Errorf("%w: got %d", store.ErrInvalidReplacement, len(replacements))
		}
		return replacements[0], nil
	}

	parentID, ok := e.m.parents[orig.ID]
	if !ok {
		return "", fmt.Errorf("%w: %s", store.ErrNoParent, orig.ID)
	}

	child := orig.ID
	for depth := 0; depth < maxDepth; depth++ {
		newParent, err := e.replaceInParent(parentID, child, replacements)
		if err != nil {
			return "", err
		}
		if newParent.Kind == store.KindDocument {
			return newParent.ID, nil
		}

		child, replacements = parentID, []string{newParent.ID}
		if parentID, ok = e.m.parents[child]; !ok {
			return "", fmt.Errorf("%w: no parent cached for %s", store.ErrParentCache, child)
		}
	}
	return "", fmt.Errorf("%w: no document above %s", store.ErrParentCache, orig.ID)
}

// finish records the outcome of a structural edit
func (m *Model) finish(op string, start time.Time, e *editor, edit Edit, err error) (Edit, error) {
	m.rec.ObserveEdit(op, time.Since(start), err)
	if err != nil {
		// Staged parent links may point at elements that never became current
		m.rebuildParents()
		m.log.Debug().Err(err).Str("op", op).Msg("Edit rejected")
		return Edit{}, err
	}

	m.rec.ObserveReuse(e.exact, e.partial, e.fresh)
	m.rec.ObserveVersion(m.store.LatestVersion())
	m.log.Debug().
		Str("op", op).
		Int("version", edit.Version).
		Str("root", edit.RootID).
		Int("created", len(e.pending)).
		Int("reused_exact", e.exact).
		Int("reused_partial", e.partial).
		Int("fresh", e.fresh).
		Msg("Edit applied")
	return edit, nil
}

// UpdateElement replaces the text of id. The text is segmented for the
// element's kind and matched against its current children so unchanged
// subtrees keep their identity; the change is bubbled up to a new root.
func (m *Model) UpdateElement(id, text string) (Edit, error) {
	start := time.Now()
	e := m.begin()
	edit, err := m.updateElement(e, id, text)
	return m.finish("update_element", start, e, edit, err)
}

func (m *Model) updateElement(e *editor, id, text string) (Edit, error) {
	if strings.TrimSpace(text) == "" {
		return Edit{}, store.ErrEmptyContents
	}
	orig, err := m.Element(id)
	if err != nil {
		return Edit{}, err
	}
	if err := m.requireCurrent(id); err != nil {
		return Edit{}, err
	}

	ids, err := e.parse(text, orig.Kind, orig.ID)
	if err != nil {
		return Edit{}, err
	}
	rootID, err := e.bubbleUp(orig, ids)
	if err != nil {
		return Edit{}, err
	}
	n, err := e.commit(rootID)
	if err != nil {
		return Edit{}, err
	}
	return Edit{Version: n, RootID: rootID, Replacements: ids}, nil
}

// DeleteElement removes id from the current tree. A sentence or paragraph
// left without children is removed as well; the document is never removed.
func (m *Model) DeleteElement(id string) (Edit, error) {
	start := time.Now()
	e := m.begin()
	edit, err := m.deleteElement(e, id)
	return m.finish("delete_element", start, e, edit, err)
}

func (m *Model) deleteElement(e *editor, id string) (Edit, error) {
	target, err := m.Element(id)
	if err != nil {
		return Edit{}, err
	}
	if target.Kind == store.KindDocument {
		return Edit{}, store.ErrCannotDeleteDocument
	}
	if err := m.requireCurrent(id); err != nil {
		return Edit{}, err
	}

	for {
		parentID, ok := m.parents[target.ID]
		if !ok {
			return Edit{}, fmt.Errorf("%w: %s", store.ErrNoParent, target.ID)
		}
		parent, err := m.Element(parentID)
		if err != nil {
			return Edit{}, err
		}
		remaining := slices.DeleteFunc(slices.Clone(parent.Children), func(cid string) bool { return cid == target.ID })
		if len(remaining) > 0 || parent.Kind == store.KindDocument {
			break
		}
		target = parent
	}

	rootID, err := e.bubbleUp(target, nil)
	if err != nil {
		return Edit{}, err
	}
	n, err := e.commit(rootID)
	if err != nil {
		return Edit{}, err
	}
	return Edit{Version: n, RootID: rootID}, nil
}

// AddAfter parses text into fresh elements of the sibling's kind and
// inserts them right after it
func (m *Model) AddAfter(siblingID, text string) (Edit, error) {
	start := time.Now()
	e := m.begin()
	edit, err := m.addAfter(e, siblingID, text)
	return m.finish("add_after", start, e, edit, err)
}

func (m *Model) addAfter(e *editor, siblingID, text string) (Edit, error) {
	if strings.TrimSpace(text) == "" {
		return Edit{}, store.ErrEmptyContents
	}
	sibling, err := m.Element(siblingID)
	if err != nil {
		return Edit{}, err
	}
	if sibling.Kind == store.KindDocument {
		return Edit{}, fmt.Errorf("%w: %s is the document", store.ErrNoParent, siblingID)
	}
	if err := m.requireCurrent(siblingID); err != nil {
		return Edit{}, err
	}

	parentID, ok := m.parents[siblingID]
	if !ok {
		return Edit{}, fmt.Errorf("%w: %s", store.ErrNoParent, siblingID)
	}
	parent, err := m.Element(parentID)
	if err != nil {
		return Edit{}, err
	}
	at := slices.Index(parent.Children, siblingID)
	if at < 0 {
		return Edit{}, fmt.Errorf("%w: %s in %s", store.ErrSiblingNotFound, siblingID, parentID)
	}

	ids, err := e.parse(text, sibling.Kind, "")
	if err != nil {
		return Edit{}, err
	}

	children := slices.Insert(slices.Clone(parent.Children), at+1, ids...)
	newParent := e.create(parent.Kind, "", children)

	rootID, err := e.bubbleUp(parent, []string{newParent.ID})
	if err != nil {
		return Edit{}, err
	}
	n, err := e.commit(rootID)
	if err != nil {
		return Edit{}, err
	}
	return Edit{Version: n, RootID: rootID, Replacements: ids}, nil
}
