package store

import (
	"errors"
	"fmt"
)

// Error categories. Every specific error below wraps exactly one of these so
// callers can branch on either level with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInconsistentState = errors.New("inconsistent state")
)

var (
	ErrElementNotFound     = fmt.Errorf("element %w", ErrNotFound)
	ErrAnnotationNotFound  = fmt.Errorf("annotation %w", ErrNotFound)
	ErrMappingNotFound     = fmt.Errorf("open element annotation mapping %w", ErrNotFound)
	ErrVersionNotFound     = fmt.Errorf("version %w", ErrNotFound)
	ErrNoCurrentVersion    = fmt.Errorf("current version %w", ErrNotFound)
	ErrNoParent            = fmt.Errorf("parent %w", ErrNotFound)
	ErrSiblingNotFound     = fmt.Errorf("sibling %w in parent", ErrNotFound)
	ErrNoActiveMapping     = fmt.Errorf("active mapping %w", ErrNotFound)
	ErrNotInCurrentVersion = fmt.Errorf("element %w in current version", ErrNotFound)

	ErrInvalidElement       = fmt.Errorf("%w: only words may carry contents", ErrInvalidArgument)
	ErrDuplicateID          = fmt.Errorf("%w: identifier already stored", ErrInvalidArgument)
	ErrEmptyContents        = fmt.Errorf("%w: contents cannot be empty, use delete instead", ErrInvalidArgument)
	ErrCannotDeleteDocument = fmt.Errorf("%w: cannot delete the document root", ErrInvalidArgument)
	ErrInvalidReplacement   = fmt.Errorf("%w: document root must be replaced by exactly one element", ErrInvalidArgument)
	ErrInvalidAnnotation    = fmt.Errorf("%w: bad annotation kind or status", ErrInvalidArgument)

	ErrParentCache = fmt.Errorf("%w: parent cache disagrees with tree", ErrInconsistentState)

	// ErrJournalFailed is returned by a JournalStore after a journal write failed
	ErrJournalFailed = errors.New("store: journal write failed, store is read-only")
)
