package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func word(id, text string) Element {
	return Element{ID: id, Kind: KindWord, Contents: text}
}

func TestMemoryStore_AddElementRejectsContentsOnNonWord(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	_, err := s.AddElement(Element{ID: "s1", Kind: KindSentence, Contents: "oops"})
	require.ErrorIs(t, err, ErrInvalidElement)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.AddElement(Element{ID: "w1", Kind: KindWord, Contents: "a", Children: []string{"x"}})
	require.ErrorIs(t, err, ErrInvalidElement)

	_, err = s.AddElement(Element{ID: "", Kind: KindWord, Contents: "a"})
	require.ErrorIs(t, err, ErrInvalidElement)

	_, err = s.AddElement(Element{ID: "k", Kind: Kind(9)})
	require.ErrorIs(t, err, ErrInvalidElement)

	require.Empty(t, s.Elements())
}

func TestMemoryStore_AddElementRejectsDuplicate(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.AddElement(word("w1", "a"))
	require.NoError(t, err)

	_, err = s.AddElement(word("w1", "b"))
	require.ErrorIs(t, err, ErrDuplicateID)

	got, ok := s.GetElement("w1")
	require.True(t, ok)
	require.Equal(t, "a", got.Contents)
}

func TestMemoryStore_AddElementsIsAllOrNothing(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()

	_, err := s.AddElements([]Element{word("w1", "a"), word("w1", "b")})
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = s.AddElements([]Element{word("w1", "a"), {ID: "s1", Kind: KindSentence, Contents: "x"}})
	require.ErrorIs(t, err, ErrInvalidElement)
	require.Empty(t, s.Elements())

	ids, err := s.AddElements([]Element{word("w1", "a"), word("w2", "b")})
	require.NoError(t, err)
	require.Equal(t, []string{"w1", "w2"}, ids)
}

func TestMemoryStore_ElementsAreCopied(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	children := []string{"w1", "w2"}
	_, err := s.AddElement(Element{ID: "s1", Kind: KindSentence, Children: children})
	require.NoError(t, err)

	children[0] = "mutated"
	got, _ := s.GetElement("s1")
	require.Equal(t, []string{"w1", "w2"}, got.Children)

	got.Children[1] = "mutated"
	again, _ := s.GetElement("s1")
	require.Equal(t, []string{"w1", "w2"}, again.Children)
}

func TestMemoryStore_Versions(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newMemoryStore(func() time.Time { return fixed })

	_, ok := s.CurrentVersion()
	require.False(t, ok)
	require.Equal(t, 0, s.LatestVersion())

	_, err := s.AddVersion("missing")
	require.ErrorIs(t, err, ErrElementNotFound)

	_, err = s.AddElements([]Element{{ID: "d1", Kind: KindDocument}, {ID: "d2", Kind: KindDocument}})
	require.NoError(t, err)

	n1, err := s.AddVersion("d1")
	require.NoError(t, err)
	n2, err := s.AddVersion("d2")
	require.NoError(t, err)
	require.Equal(t, 1, n1)
	require.Equal(t, 2, n2)

	cur, ok := s.CurrentVersion()
	require.True(t, ok)
	require.Equal(t, 2, cur)

	v, ok := s.GetVersion(1)
	require.True(t, ok)
	require.Equal(t, Version{ID: "1", Number: 1, RootID: "d1", FormatVersion: FormatVersion, CreatedAt: fixed}, v)

	require.NoError(t, s.SwitchCurrentVersion(1))
	cur, _ = s.CurrentVersion()
	require.Equal(t, 1, cur)
	require.Equal(t, 2, s.LatestVersion())

	err = s.SwitchCurrentVersion(3)
	require.ErrorIs(t, err, ErrVersionNotFound)
	require.ErrorIs(t, err, ErrNotFound)

	// Numbers keep climbing after a switch back
	n3, err := s.AddVersion("d1")
	require.NoError(t, err)
	require.Equal(t, 3, n3)
	require.Len(t, s.Versions(), 3)
}

func TestMemoryStore_AnnotationValidity(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.AddElements([]Element{{ID: "d1", Kind: KindDocument}, word("w1", "a")})
	require.NoError(t, err)

	ann := Annotation{ID: "a1", Kind: AnnotationComment, Contents: "hi", Status: StatusOpen}

	// No version yet: mapping opens at 0
	_, err = s.AddAnnotation(ann, "w1")
	require.NoError(t, err)
	require.Equal(t, 0, s.ElementAnnotations()[0].ValidFrom)

	_, err = s.AddVersion("d1")
	require.NoError(t, err)
	_, err = s.AddAnnotation(Annotation{ID: "a2", Kind: AnnotationQuestion, Status: StatusOpen}, "w1")
	require.NoError(t, err)

	mappings := s.ElementAnnotations()
	require.Len(t, mappings, 2)
	require.Equal(t, 1, mappings[1].ValidFrom)
	require.True(t, mappings[1].ValidThrough.IsOpen())

	require.NoError(t, s.UpdateElementAnnotationValidity("w1", "a1", 1))
	closed := s.ElementAnnotations()[0]
	require.False(t, closed.ValidThrough.IsOpen())
	require.Equal(t, 1, closed.ValidThrough.Number())
	require.True(t, closed.Covers(1))
	require.False(t, closed.Covers(2))

	// Closing twice fails: no open mapping remains
	err = s.UpdateElementAnnotationValidity("w1", "a1", 2)
	require.ErrorIs(t, err, ErrMappingNotFound)
}

func TestMemoryStore_AddAnnotationValidation(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.AddElement(word("w1", "a"))
	require.NoError(t, err)

	_, err = s.AddAnnotation(Annotation{ID: "a1", Kind: "rant", Status: StatusOpen}, "w1")
	require.ErrorIs(t, err, ErrInvalidAnnotation)

	_, err = s.AddAnnotation(Annotation{ID: "a1", Kind: AnnotationComment, Status: "pending"}, "w1")
	require.ErrorIs(t, err, ErrInvalidAnnotation)

	_, err = s.AddAnnotation(Annotation{ID: "a1", Kind: AnnotationComment, Status: StatusOpen}, "nope")
	require.ErrorIs(t, err, ErrElementNotFound)

	_, err = s.AddAnnotation(Annotation{ID: "a1", Kind: AnnotationComment, Status: StatusOpen}, "w1")
	require.NoError(t, err)
	_, err = s.AddAnnotation(Annotation{ID: "a1", Kind: AnnotationComment, Status: StatusOpen}, "w1")
	require.ErrorIs(t, err, ErrDuplicateID)

	require.Len(t, s.Annotations(), 1)
}

func TestMemoryStore_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.AddElement(Element{ID: "d1", Kind: KindDocument})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.GetElement("d1")
				s.CurrentVersion()
				s.Elements()
			}
		}()
	}
	for j := 0; j < 50; j++ {
		if _, err := s.AddVersion("d1"); err != nil {
			t.Error(err)
		}
	}
	wg.Wait()

	require.Equal(t, 50, s.LatestVersion())
}

func TestErrorCategories(t *testing.T) {
	t.Parallel()

	notFound := []error{ErrElementNotFound, ErrAnnotationNotFound, ErrMappingNotFound, ErrVersionNotFound,
		ErrNoCurrentVersion, ErrNoParent, ErrSiblingNotFound, ErrNoActiveMapping, ErrNotInCurrentVersion}
	for _, err := range notFound {
		require.True(t, errors.Is(err, ErrNotFound), err.Error())
		require.False(t, errors.Is(err, ErrInvalidArgument), err.Error())
	}

	invalid := []error{ErrInvalidElement, ErrDuplicateID, ErrEmptyContents, ErrCannotDeleteDocument,
		ErrInvalidReplacement, ErrInvalidAnnotation}
	for _, err := range invalid {
		require.True(t, errors.Is(err, ErrInvalidArgument), err.Error())
	}

	require.True(t, errors.Is(ErrParentCache, ErrInconsistentState))
}
