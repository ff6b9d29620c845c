// ABOUTME: Append-only repository of elements, annotations and versions
// ABOUTME: Store is the seam between the document model and its backing storage

package store

// Store is the single source of truth for the versioned text model.
// Records are never mutated or removed once stored; the only exception is
// closing the validity interval of an element annotation mapping.
type Store interface {
	// AddElement stores a new immutable element and returns its id.
	// Returns ErrInvalidElement if a non-word carries contents.
	AddElement(el Element) (string, error)

	// AddElements stores several elements, all or nothing.
	AddElements(els []Element) ([]string, error)

	GetElement(id string) (Element, bool)

	// Elements enumerates every stored element.
	Elements() []Element

	// AddAnnotation stores the annotation plus an open mapping to target,
	// valid from the current version (0 when there is none).
	AddAnnotation(ann Annotation, targetID string) (string, error)

	GetAnnotation(id string) (Annotation, bool)

	// UpdateElementAnnotationValidity closes the open mapping between the
	// element and the annotation at the given version, inclusive.
	// Returns ErrMappingNotFound if there is no open mapping.
	UpdateElementAnnotationValidity(elementID, annotationID string, through int) error

	// AddVersion allocates the next version number for rootID and makes it current.
	AddVersion(rootID string) (int, error)

	// SwitchCurrentVersion repoints the current version.
	// Returns ErrVersionNotFound for a number that was never allocated.
	SwitchCurrentVersion(number int) error

	// CurrentVersion returns the current version number, false if none is set.
	CurrentVersion() (int, bool)

	// LatestVersion returns the highest allocated version number, 0 if none.
	LatestVersion() int

	GetVersion(number int) (Version, bool)

	Annotations() []Annotation
	ElementAnnotations() []ElementAnnotation
}

// validateElement checks the kind/contents invariant of a single element
func validateElement(el Element) error {
	if el.ID == "" {
		return ErrInvalidElement
	}
	if !el.Kind.Valid() {
		return ErrInvalidElement
	}
	if el.Kind != KindWord && el.Contents != "" {
		return ErrInvalidElement
	}
	if el.Kind == KindWord && len(el.Children) > 0 {
		return ErrInvalidElement
	}
	return nil
}
