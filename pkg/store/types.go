// ABOUTME: Record types for the versioned text store
// ABOUTME: Elements, versions, annotations and their validity intervals

package store

import (
	"fmt"
	"time"
)

// FormatVersion is stamped on every Version record
const FormatVersion = "1.0"

// Kind is the level of an element in the document hierarchy
type Kind uint8

const (
	KindDocument Kind = iota + 1
	KindParagraph
	KindSentence
	KindWord
)

var kindNames = map[Kind]string{
	KindDocument:  "document",
	KindParagraph: "paragraph",
	KindSentence:  "sentence",
	KindWord:      "word",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the four hierarchy levels
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind converts a kind name back to a Kind
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown element kind %q", ErrInvalidArgument, s)
}

// Element is an immutable node in the document tree.
// Contents is only populated for words; the text of any other element is
// the join of its descendants.
type Element struct {
	ID        string
	Kind      Kind
	Contents  string
	Children  []string
	CreatedAt time.Time
}

// Clone returns a copy that shares no memory with e
func (e Element) Clone() Element {
	c := e
	if e.Children != nil {
		c.Children = append([]string(nil), e.Children...)
	}
	return c
}

// Version is a numbered snapshot pointing at a document root
type Version struct {
	ID            string
	Number        int
	RootID        string
	FormatVersion string
	CreatedAt     time.Time
}

// AnnotationKind classifies an annotation
type AnnotationKind string

const (
	AnnotationCritique   AnnotationKind = "critique"
	AnnotationSuggestion AnnotationKind = "suggestion"
	AnnotationQuestion   AnnotationKind = "question"
	AnnotationComment    AnnotationKind = "comment"
)

// Valid reports whether k is a known annotation kind
func (k AnnotationKind) Valid() bool {
	switch k {
	case AnnotationCritique, AnnotationSuggestion, AnnotationQuestion, AnnotationComment:
		return true
	}
	return false
}

// AnnotationStatus is the review state of an annotation
type AnnotationStatus string

const (
	StatusOpen     AnnotationStatus = "open"
	StatusResolved AnnotationStatus = "resolved"
	StatusOutdated AnnotationStatus = "outdated"
)

// Valid reports whether s is a known status
func (s AnnotationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusResolved, StatusOutdated:
		return true
	}
	return false
}

// Annotation is an immutable comment attached to an element. Edits produce
// a new Annotation whose PreviousVersionID points at the one it supersedes.
type Annotation struct {
	ID                string
	PreviousVersionID string
	Kind              AnnotationKind
	Contents          string
	Status            AnnotationStatus
	CreatedAt         time.Time
}

// Through is the upper bound of a validity interval: either open or a
// concrete (inclusive) version number. It only ever moves from open to closed.
type Through struct {
	closed bool
	number int
}

// Open returns an unbounded upper limit
func Open() Through { return Through{} }

// Closed returns an upper limit at version n, inclusive
func Closed(n int) Through { return Through{closed: true, number: n} }

// IsOpen reports whether the interval is still unbounded
func (t Through) IsOpen() bool { return !t.closed }

// Number returns the closing version, or 0 when open
func (t Through) Number() int { return t.number }

func (t Through) String() string {
	if !t.closed {
		return "open"
	}
	return fmt.Sprintf("%d", t.number)
}

// ElementAnnotation ties an annotation to an element for a range of versions
type ElementAnnotation struct {
	ElementID    string
	AnnotationID string
	ValidFrom    int
	ValidThrough Through
}

// Covers reports whether the mapping is valid at the given version
func (ea ElementAnnotation) Covers(version int) bool {
	if version < ea.ValidFrom {
		return false
	}
	return ea.ValidThrough.IsOpen() || version <= ea.ValidThrough.Number()
}
