package model

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nainya/texttree/pkg/store"
)

// ValidateParentMap walks the current tree and logs every child whose cached
// parent disagrees with the tree. It returns the number of disagreements and
// never changes state.
func (m *Model) ValidateParentMap() int {
	root, err := m.RootElement()
	if err != nil {
		m.log.Warn().Err(err).Msg("Cannot validate parent cache")
		return 0
	}

	bad := 0
	var check func(el store.Element, depth int)
	check = func(el store.Element, depth int) {
		for _, cid := range el.Children {
			if cached, ok := m.parents[cid]; !ok || cached != el.ID {
				bad++
				m.log.Warn().
					Str("child", cid).
					Str("cached_parent", cached).
					Str("actual_parent", el.ID).
					Msg("Parent cache inconsistency")
			}
			child, ok := m.store.GetElement(cid)
			if !ok || depth >= maxDepth {
				continue
			}
			check(child, depth+1)
		}
	}
	check(root, 1)
	return bad
}

// CheckInvariants verifies the shape of the current tree: every element
// exists, has the kind its level requires, carries contents only as a word,
// appears once, and agrees with the parent cache.
func (m *Model) CheckInvariants() error {
	root, err := m.RootElement()
	if err != nil {
		return err
	}

	var errs []error
	if root.Kind != store.KindDocument {
		errs = append(errs, fmt.Errorf("%w: root %s is a %s", store.ErrInconsistentState, root.ID, root.Kind))
	}

	seen := map[string]bool{root.ID: true}
	var walk func(el store.Element, depth int)
	walk = func(el store.Element, depth int) {
		if (el.Kind == store.KindWord) != (el.Contents != "") {
			errs = append(errs, fmt.Errorf("%w: %s %s has contents %q", store.ErrInconsistentState, el.Kind, el.ID, el.Contents))
		}
		if depth >= maxDepth {
			return
		}
		want := childKind(el.Kind)
		for _, cid := range el.Children {
			if seen[cid] {
				errs = append(errs, fmt.Errorf("%w: %s appears more than once", store.ErrInconsistentState, cid))
				continue
			}
			seen[cid] = true

			child, ok := m.store.GetElement(cid)
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s", store.ErrElementNotFound, cid))
				continue
			}
			if child.Kind != want {
				errs = append(errs, fmt.Errorf("%w: %s %s under %s %s", store.ErrInconsistentState, child.Kind, cid, el.Kind, el.ID))
			}
			walk(child, depth+1)
		}
	}
	walk(root, 1)

	if n := m.ValidateParentMap(); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d entries", store.ErrParentCache, n))
	}
	return errors.Join(errs...)
}

// Outline writes the current tree, one element per line, indented by depth
func (m *Model) Outline(w io.Writer) error {
	root, err := m.RootElement()
	if err != nil {
		return err
	}

	var write func(el store.Element, depth int) error
	write = func(el store.Element, depth int) error {
		line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", depth), el.Kind, el.ID)
		if el.Kind == store.KindWord {
			line += fmt.Sprintf(" %q", el.Contents)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if depth >= maxDepth {
			return nil
		}
		for _, cid := range el.Children {
			child, err := m.Element(cid)
			if err != nil {
				return err
			}
			if err := write(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return write(root, 0)
}
