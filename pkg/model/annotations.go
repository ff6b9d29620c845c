package model

import (
	"fmt"
	"time"

	"github.com/nainya/texttree/pkg/store"
)

// Annotation operations never touch the tree. Each one records a version
// with the current root so validity intervals have a fresh boundary: a
// superseded mapping is closed at the current version and its successor
// opens at the next one.

// AddAnnotation attaches a new open annotation to an element of the current
// tree and returns its id
func (m *Model) AddAnnotation(elementID string, kind store.AnnotationKind, contents string) (string, error) {
	start := time.Now()
	id, err := m.addAnnotation(elementID, kind, contents)
	m.observeAnnotation("add_annotation", start, err)
	return id, err
}

func (m *Model) addAnnotation(elementID string, kind store.AnnotationKind, contents string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: kind %q", store.ErrInvalidAnnotation, kind)
	}
	if _, err := m.Element(elementID); err != nil {
		return "", err
	}
	if err := m.requireCurrent(elementID); err != nil {
		return "", err
	}

	if err := m.bumpVersion(); err != nil {
		return "", err
	}
	return m.store.AddAnnotation(store.Annotation{
		ID:        m.newID(),
		Kind:      kind,
		Contents:  contents,
		Status:    store.StatusOpen,
		CreatedAt: m.now(),
	}, elementID)
}

// UpdateAnnotation supersedes an annotation with new contents and returns
// the id of the new annotation
func (m *Model) UpdateAnnotation(annotationID, contents string) (string, error) {
	start := time.Now()
	id, err := m.supersede(annotationID, func(a *store.Annotation) { a.Contents = contents })
	m.observeAnnotation("update_annotation", start, err)
	return id, err
}

// ChangeAnnotationStatus supersedes an annotation with a new status and
// returns the id of the new annotation
func (m *Model) ChangeAnnotationStatus(annotationID string, status store.AnnotationStatus) (string, error) {
	start := time.Now()
	var id string
	var err error
	if !status.Valid() {
		err = fmt.Errorf("%w: status %q", store.ErrInvalidAnnotation, status)
	} else {
		id, err = m.supersede(annotationID, func(a *store.Annotation) { a.Status = status })
	}
	m.observeAnnotation("change_annotation_status", start, err)
	return id, err
}

// DeleteAnnotation ends the validity of an annotation at the current version
func (m *Model) DeleteAnnotation(annotationID string) error {
	start := time.Now()
	err := m.deleteAnnotation(annotationID)
	m.observeAnnotation("delete_annotation", start, err)
	return err
}

func (m *Model) deleteAnnotation(annotationID string) error {
	if _, ok := m.store.GetAnnotation(annotationID); !ok {
		return fmt.Errorf("%w: %s", store.ErrAnnotationNotFound, annotationID)
	}
	mapping, err := m.activeMapping(annotationID)
	if err != nil {
		return err
	}
	if err := m.store.UpdateElementAnnotationValidity(mapping.ElementID, annotationID, m.CurrentVersionNumber()); err != nil {
		return err
	}
	return m.bumpVersion()
}

// supersede closes the open mapping of annotationID and chains a modified
// copy onto the same element at a new version
func (m *Model) supersede(annotationID string, change func(*store.Annotation)) (string, error) {
	old, ok := m.store.GetAnnotation(annotationID)
	if !ok {
		return "", fmt.Errorf("%w: %s", store.ErrAnnotationNotFound, annotationID)
	}
	mapping, err := m.activeMapping(annotationID)
	if err != nil {
		return "", err
	}

	if err := m.store.UpdateElementAnnotationValidity(mapping.ElementID, annotationID, m.CurrentVersionNumber()); err != nil {
		return "", err
	}
	if err := m.bumpVersion(); err != nil {
		return "", err
	}

	next := old
	next.ID = m.newID()
	next.PreviousVersionID = annotationID
	next.CreatedAt = m.now()
	change(&next)
	return m.store.AddAnnotation(next, mapping.ElementID)
}

// activeMapping finds the open mapping of an annotation
func (m *Model) activeMapping(annotationID string) (store.ElementAnnotation, error) {
	for _, ea := range m.store.ElementAnnotations() {
		if ea.AnnotationID == annotationID && ea.ValidThrough.IsOpen() {
			return ea, nil
		}
	}
	return store.ElementAnnotation{}, fmt.Errorf("%w: annotation %s", store.ErrNoActiveMapping, annotationID)
}

// bumpVersion records a new version that reuses the current root
func (m *Model) bumpVersion() error {
	root, err := m.RootElement()
	if err != nil {
		return err
	}
	if _, err := m.store.AddVersion(root.ID); err != nil {
		return err
	}
	return nil
}

func (m *Model) observeAnnotation(op string, start time.Time, err error) {
	m.rec.ObserveEdit(op, time.Since(start), err)
	if err != nil {
		m.log.Debug().Err(err).Str("op", op).Msg("Annotation change rejected")
		return
	}
	m.rec.ObserveVersion(m.store.LatestVersion())
	m.log.Debug().Str("op", op).Int("version", m.CurrentVersionNumber()).Msg("Annotation changed")
}

// AnnotationsFor returns the annotations attached to elementID at the
// current version
func (m *Model) AnnotationsFor(elementID string) []store.Annotation {
	cur, ok := m.store.CurrentVersion()
	if !ok {
		return nil
	}

	var out []store.Annotation
	for _, ea := range m.store.ElementAnnotations() {
		if ea.ElementID != elementID || !ea.Covers(cur) {
			continue
		}
		if ann, ok := m.store.GetAnnotation(ea.AnnotationID); ok {
			out = append(out, ann)
		}
	}
	return out
}

// AnnotationHistory follows PreviousVersionID from annotationID back to the
// first version, newest first
func (m *Model) AnnotationHistory(annotationID string) ([]store.Annotation, error) {
	var out []store.Annotation
	seen := make(map[string]bool)
	for id := annotationID; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("%w: annotation chain loops at %s", store.ErrInconsistentState, id)
		}
		seen[id] = true

		ann, ok := m.store.GetAnnotation(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrAnnotationNotFound, id)
		}
		out = append(out, ann)
		id = ann.PreviousVersionID
	}
	return out, nil
}
