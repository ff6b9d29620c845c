package model

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nainya/texttree/pkg/idgen"
	"github.com/nainya/texttree/pkg/store"
)

const sample = "A B.\n\nC D. E F."

func newModel(t *testing.T, seed string) *Model {
	t.Helper()
	m, err := New(store.NewMemoryStore(), WithIDGenerator(idgen.Sequence("el")), WithSeedText(seed))
	require.NoError(t, err)
	return m
}

// at walks from the current root by child index
func at(t *testing.T, m *Model, path ...int) store.Element {
	t.Helper()
	el, err := m.RootElement()
	require.NoError(t, err)
	for _, i := range path {
		require.Less(t, i, len(el.Children), "path %v", path)
		el, err = m.Element(el.Children[i])
		require.NoError(t, err)
	}
	return el
}

func contents(t *testing.T, m *Model, id string) string {
	t.Helper()
	text, err := m.ComputeFullContents(id)
	require.NoError(t, err)
	return text
}

func childIDs(t *testing.T, m *Model, path ...int) []string {
	t.Helper()
	return at(t, m, path...).Children
}

func TestNew_EmptyStoreCreatesRoot(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	m, err := New(s)
	require.NoError(t, err)

	root, err := m.RootElement()
	require.NoError(t, err)
	require.Equal(t, store.KindDocument, root.Kind)
	require.Empty(t, root.Contents)
	require.Empty(t, root.Children)
	require.Equal(t, 1, m.CurrentVersionNumber())
	require.Equal(t, 1, m.LatestVersionNumber())

	v, err := m.CurrentVersion()
	require.NoError(t, err)
	require.Equal(t, root.ID, v.RootID)
	require.Equal(t, store.FormatVersion, v.FormatVersion)
}

func TestNew_SeedTextBuildsHierarchy(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	require.Equal(t, 2, m.CurrentVersionNumber())

	root := at(t, m)
	require.Len(t, root.Children, 2)

	p1, p2 := at(t, m, 0), at(t, m, 1)
	require.Equal(t, store.KindParagraph, p1.Kind)
	require.Len(t, p1.Children, 1)
	require.Len(t, p2.Children, 2)

	for _, path := range [][]int{{0, 0}, {1, 0}, {1, 1}} {
		s := at(t, m, path...)
		require.Equal(t, store.KindSentence, s.Kind)
		require.Empty(t, s.Contents)
		require.Len(t, s.Children, 2)
	}

	words := []string{
		at(t, m, 0, 0, 0).Contents, at(t, m, 0, 0, 1).Contents,
		at(t, m, 1, 0, 0).Contents, at(t, m, 1, 0, 1).Contents,
		at(t, m, 1, 1, 0).Contents, at(t, m, 1, 1, 1).Contents,
	}
	require.Equal(t, []string{"A", "B.", "C", "D.", "E", "F."}, words)
	require.Equal(t, store.KindWord, at(t, m, 1, 1, 1).Kind)

	require.Equal(t, sample, contents(t, m, root.ID))
	require.Equal(t, "C D. E F.", contents(t, m, p2.ID))
	require.Equal(t, "E F.", contents(t, m, at(t, m, 1, 1).ID))
	require.NoError(t, m.CheckInvariants())
}

func TestNew_ExistingStoreIsReused(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	first, err := New(s, WithSeedText(sample))
	require.NoError(t, err)
	root, err := first.RootElement()
	require.NoError(t, err)

	second, err := New(s, WithSeedText("something else entirely."))
	require.NoError(t, err)
	again, err := second.RootElement()
	require.NoError(t, err)

	require.Equal(t, root.ID, again.ID)
	require.Equal(t, 2, second.LatestVersionNumber())

	// The cache is built for the existing tree
	require.Zero(t, second.ValidateParentMap())
	parent, ok := second.Parent(root.Children[0])
	require.True(t, ok)
	require.Equal(t, root.ID, parent)
}

func TestUpdateElement_Word(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	root := at(t, m)
	p1, p2 := at(t, m, 0), at(t, m, 1)
	sCD, sEF := at(t, m, 1, 0), at(t, m, 1, 1)
	wE, wF := at(t, m, 1, 1, 0), at(t, m, 1, 1, 1)

	edit, err := m.UpdateElement(wE.ID, "X")
	require.NoError(t, err)
	require.Equal(t, 3, edit.Version)
	require.Len(t, edit.Replacements, 1)

	newRoot := at(t, m)
	require.Equal(t, edit.RootID, newRoot.ID)
	require.NotEqual(t, root.ID, newRoot.ID)
	require.Equal(t, p1.ID, at(t, m, 0).ID)
	require.NotEqual(t, p2.ID, at(t, m, 1).ID)
	require.Equal(t, sCD.ID, at(t, m, 1, 0).ID)
	require.NotEqual(t, sEF.ID, at(t, m, 1, 1).ID)

	newE := at(t, m, 1, 1, 0)
	require.NotEqual(t, wE.ID, newE.ID)
	require.Equal(t, "X", newE.Contents)
	require.Equal(t, wF.ID, at(t, m, 1, 1, 1).ID)

	require.Equal(t, "A B.\n\nC D. X F.", contents(t, m, newRoot.ID))
	require.NoError(t, m.CheckInvariants())
}

func TestUpdateElement_WordIntoTwo(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	wE := at(t, m, 1, 1, 0)

	_, err := m.UpdateElement(wE.ID, "X Y")
	require.NoError(t, err)

	sentence := at(t, m, 1, 1)
	require.Len(t, sentence.Children, 3)
	require.Equal(t, "X", at(t, m, 1, 1, 0).Contents)
	require.Equal(t, "Y", at(t, m, 1, 1, 1).Contents)
	require.Equal(t, "F.", at(t, m, 1, 1, 2).Contents)
	require.NotContains(t, sentence.Children, wE.ID)
}

func TestUpdateElement_WordKeepsItselfWhenRepeated(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	wE, wF := at(t, m, 1, 1, 0), at(t, m, 1, 1, 1)

	_, err := m.UpdateElement(wE.ID, "E X")
	require.NoError(t, err)
	ids := childIDs(t, m, 1, 1)
	require.Equal(t, wE.ID, ids[0])
	require.Equal(t, "X", at(t, m, 1, 1, 1).Contents)
	require.Equal(t, wF.ID, ids[2])
}

func TestUpdateElement_WordReusedOnlyOnce(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	wE, wF := at(t, m, 1, 1, 0), at(t, m, 1, 1, 1)

	_, err := m.UpdateElement(wE.ID, "E E E")
	require.NoError(t, err)

	ids := childIDs(t, m, 1, 1)
	require.Len(t, ids, 4)
	require.Equal(t, wE.ID, ids[0])
	require.NotEqual(t, wE.ID, ids[1])
	require.NotEqual(t, wE.ID, ids[2])
	require.NotEqual(t, ids[1], ids[2])
	require.Equal(t, wF.ID, ids[3])
	require.Equal(t, "E E E F.", contents(t, m, at(t, m, 1, 1).ID))
	require.NoError(t, m.CheckInvariants())
}

func TestUpdateElement_SentenceKeepsMatchingWords(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	sEF := at(t, m, 1, 1)
	wE, wF := at(t, m, 1, 1, 0), at(t, m, 1, 1, 1)

	_, err := m.UpdateElement(sEF.ID, "E X.")
	require.NoError(t, err)

	require.Equal(t, wE.ID, at(t, m, 1, 1, 0).ID)
	x := at(t, m, 1, 1, 1)
	require.NotEqual(t, wF.ID, x.ID)
	require.Equal(t, "X.", x.Contents)
}

func TestUpdateElement_SentenceSplitKeepsOriginal(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	sEF := at(t, m, 1, 1)

	edit, err := m.UpdateElement(sEF.ID, "E F. X Y.")
	require.NoError(t, err)
	require.Len(t, edit.Replacements, 2)
	require.Equal(t, sEF.ID, edit.Replacements[0])

	require.Len(t, childIDs(t, m, 1), 3)
	require.Equal(t, sEF.ID, at(t, m, 1, 1).ID)
	require.Equal(t, "X Y.", contents(t, m, at(t, m, 1, 2).ID))
	require.NoError(t, m.CheckInvariants())
}

func TestUpdateElement_SentenceIntoTwoNewOnes(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	sCD, sEF := at(t, m, 1, 0), at(t, m, 1, 1)

	_, err := m.UpdateElement(sCD.ID, "X Y. Z W.")
	require.NoError(t, err)

	ids := childIDs(t, m, 1)
	require.Len(t, ids, 3)
	require.Len(t, at(t, m, 1, 0).Children, 2)
	require.Len(t, at(t, m, 1, 1).Children, 2)
	require.Equal(t, sEF.ID, ids[2])
}

func TestUpdateElement_ParagraphIntoTwo(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	p1, p2 := at(t, m, 0), at(t, m, 1)

	_, err := m.UpdateElement(p2.ID, "X Y.\n\nZ W.")
	require.NoError(t, err)

	ids := childIDs(t, m)
	require.Len(t, ids, 3)
	require.Equal(t, p1.ID, ids[0])
	require.Len(t, at(t, m, 1).Children, 1)
	require.Len(t, at(t, m, 2).Children, 1)
	require.Equal(t, "A B.\n\nX Y.\n\nZ W.", contents(t, m, at(t, m).ID))
}

func TestUpdateElement_WordScenarios(t *testing.T) {
	t.Parallel()

	t.Run("E to F", func(t *testing.T) {
		m := newModel(t, "E")
		wE := at(t, m, 0, 0, 0)
		_, err := m.UpdateElement(wE.ID, "F")
		require.NoError(t, err)
		w := at(t, m, 0, 0, 0)
		require.NotEqual(t, wE.ID, w.ID)
		require.Equal(t, "F", w.Contents)
	})

	t.Run("E to E F", func(t *testing.T) {
		m := newModel(t, "E")
		wE := at(t, m, 0, 0, 0)
		_, err := m.UpdateElement(wE.ID, "E F")
		require.NoError(t, err)
		ids := childIDs(t, m, 0, 0)
		require.Len(t, ids, 2)
		require.Equal(t, wE.ID, ids[0])
	})

	t.Run("E to E E", func(t *testing.T) {
		m := newModel(t, "E")
		wE := at(t, m, 0, 0, 0)
		_, err := m.UpdateElement(wE.ID, "E E")
		require.NoError(t, err)
		ids := childIDs(t, m, 0, 0)
		require.Equal(t, wE.ID, ids[0])
		require.NotEqual(t, wE.ID, ids[1])
	})
}

func TestUpdateElement_SentenceInsertions(t *testing.T) {
	t.Parallel()

	t.Run("insert a word", func(t *testing.T) {
		m := newModel(t, "Life is good.")
		old := childIDs(t, m, 0, 0)
		_, err := m.UpdateElement(at(t, m, 0, 0).ID, "Life is very good.")
		require.NoError(t, err)
		ids := childIDs(t, m, 0, 0)
		require.Len(t, ids, 4)
		require.Equal(t, old[0], ids[0])
		require.Equal(t, old[1], ids[1])
		require.Equal(t, "very", at(t, m, 0, 0, 2).Contents)
		require.Equal(t, old[2], ids[3])
	})

	t.Run("repeat a word", func(t *testing.T) {
		m := newModel(t, "Life is very good.")
		old := childIDs(t, m, 0, 0)
		_, err := m.UpdateElement(at(t, m, 0, 0).ID, "Life is very very good.")
		require.NoError(t, err)
		ids := childIDs(t, m, 0, 0)
		require.Equal(t, []string{old[0], old[1], old[2]}, ids[:3])
		require.NotEqual(t, old[2], ids[3])
		require.Equal(t, old[3], ids[4])
	})

	t.Run("prepend a word", func(t *testing.T) {
		m := newModel(t, "A B.")
		old := childIDs(t, m, 0, 0)
		_, err := m.UpdateElement(at(t, m, 0, 0).ID, "X A B.")
		require.NoError(t, err)
		ids := childIDs(t, m, 0, 0)
		require.Equal(t, old, ids[1:])
	})
}

func TestUpdateElement_ReorderCreatesNewIdentities(t *testing.T) {
	t.Parallel()

	m := newModel(t, "A B C")
	old := childIDs(t, m, 0, 0)

	_, err := m.UpdateElement(at(t, m, 0, 0).ID, "C B A")
	require.NoError(t, err)

	ids := childIDs(t, m, 0, 0)
	require.Len(t, ids, 3)
	for _, id := range ids {
		require.NotContains(t, old, id)
	}
	require.Equal(t, "C B A", contents(t, m, at(t, m, 0, 0).ID))
}

func TestUpdateElement_ParagraphSentenceReuse(t *testing.T) {
	t.Parallel()

	t.Run("changed second sentence", func(t *testing.T) {
		m := newModel(t, "Hello. Nice to meet you.")
		sHello, sNice := at(t, m, 0, 0), at(t, m, 0, 1)
		_, err := m.UpdateElement(at(t, m, 0).ID, "Hello. How are you?")
		require.NoError(t, err)
		require.Equal(t, sHello.ID, at(t, m, 0, 0).ID)
		require.NotEqual(t, sNice.ID, at(t, m, 0, 1).ID)
	})

	t.Run("partial match keeps words", func(t *testing.T) {
		m := newModel(t, "Hello. Nice to meet you.")
		nice := childIDs(t, m, 0, 1)
		_, err := m.UpdateElement(at(t, m, 0).ID, "Hello. Very nice to meet you.")
		require.NoError(t, err)
		words := childIDs(t, m, 0, 1)
		require.Len(t, words, 5)
		require.NotContains(t, nice, words[0])
		require.NotContains(t, nice, words[1])
		require.Equal(t, nice[1:], words[2:])
	})

	t.Run("duplicate sentence", func(t *testing.T) {
		m := newModel(t, "Hello. Nice to meet you.")
		sHello, sNice := at(t, m, 0, 0), at(t, m, 0, 1)
		_, err := m.UpdateElement(at(t, m, 0).ID, "Hello. Hello. Nice to meet you.")
		require.NoError(t, err)
		ids := childIDs(t, m, 0)
		require.Equal(t, sHello.ID, ids[0])
		require.NotEqual(t, sHello.ID, ids[1])
		require.Equal(t, sNice.ID, ids[2])
		require.NoError(t, m.CheckInvariants())
	})

	t.Run("partial reuse then new sentence", func(t *testing.T) {
		m := newModel(t, "Hello. Nice to meet you.")
		sHello, sNice := at(t, m, 0, 0), at(t, m, 0, 1)
		_, err := m.UpdateElement(at(t, m, 0).ID, "Hello. Very nice to meet you. Nice to meet you.")
		require.NoError(t, err)
		ids := childIDs(t, m, 0)
		require.Len(t, ids, 3)
		require.Equal(t, sHello.ID, ids[0])
		require.NotEqual(t, sNice.ID, ids[1])
		require.NotEqual(t, sNice.ID, ids[2])
	})
}

func TestUpdateElement_RoundTripIsIdempotent(t *testing.T) {
	t.Parallel()

	m := newModel(t, "  Hello   world.  How are\tyou?\n\n\n\nFine!  ")
	root := at(t, m)
	text := contents(t, m, root.ID)
	require.Equal(t, "Hello world. How are you?\n\nFine!", text)

	_, err := m.UpdateElement(root.ID, text)
	require.NoError(t, err)

	// Every paragraph survives by identity and the text is unchanged
	require.Equal(t, root.Children, childIDs(t, m))
	require.Equal(t, text, contents(t, m, at(t, m).ID))
}

func TestUpdateElement_Errors(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	wE := at(t, m, 1, 1, 0)
	before := m.CurrentVersionNumber()

	_, err := m.UpdateElement(wE.ID, "   \n\t")
	require.ErrorIs(t, err, store.ErrEmptyContents)
	require.ErrorIs(t, err, store.ErrInvalidArgument)

	_, err = m.UpdateElement("missing", "X")
	require.ErrorIs(t, err, store.ErrElementNotFound)

	// wE leaves the current tree after this edit
	_, err = m.UpdateElement(wE.ID, "X")
	require.NoError(t, err)
	after := m.CurrentVersionNumber()

	_, err = m.UpdateElement(wE.ID, "Y")
	require.ErrorIs(t, err, store.ErrNotInCurrentVersion)
	require.Equal(t, after, m.CurrentVersionNumber())
	require.Equal(t, before+1, after)
	require.Zero(t, m.ValidateParentMap())
}

func TestUpdateElement_UntouchedSiblingsKeepIdentity(t *testing.T) {
	t.Parallel()

	m := newModel(t, "One two three. Four five.\n\nSix seven. Eight.\n\nNine ten.")
	before := map[string]string{}
	var collect func(id string)
	collect = func(id string) {
		el, err := m.Element(id)
		require.NoError(t, err)
		before[contents(t, m, id)+"|"+el.Kind.String()] = id
		for _, c := range el.Children {
			collect(c)
		}
	}
	collect(at(t, m).ID)

	target := at(t, m, 1, 0, 1) // "seven."
	_, err := m.UpdateElement(target.ID, "eleven.")
	require.NoError(t, err)

	require.Equal(t, before["One two three. Four five.|paragraph"], at(t, m, 0).ID)
	require.Equal(t, before["Nine ten.|paragraph"], at(t, m, 2).ID)
	require.Equal(t, before["Eight.|sentence"], at(t, m, 1, 1).ID)
	require.Equal(t, before["Six|word"], at(t, m, 1, 0, 0).ID)

	// The leaf and all its ancestors are new
	require.NotEqual(t, target.ID, at(t, m, 1, 0, 1).ID)
	require.NotEqual(t, before["Six seven.|sentence"], at(t, m, 1, 0).ID)
	require.NotEqual(t, before["Six seven. Eight.|paragraph"], at(t, m, 1).ID)
}

func TestDeleteElement_Word(t *testing.T) {
	t.Parallel()

	m := newModel(t, "A B.")
	wA := at(t, m, 0, 0, 0)

	_, err := m.DeleteElement(wA.ID)
	require.NoError(t, err)

	ids := childIDs(t, m, 0, 0)
	require.Len(t, ids, 1)
	require.Equal(t, "B.", at(t, m, 0, 0, 0).Contents)
}

func TestDeleteElement_Sentence(t *testing.T) {
	t.Parallel()

	m := newModel(t, "A B. C D.")
	second := at(t, m, 0, 1)

	_, err := m.DeleteElement(at(t, m, 0, 0).ID)
	require.NoError(t, err)

	ids := childIDs(t, m, 0)
	require.Equal(t, []string{second.ID}, ids)
}

func TestDeleteElement_CascadesToEmptyAncestors(t *testing.T) {
	t.Parallel()

	m := newModel(t, "A B.\n\nC.")
	p1 := at(t, m, 0)
	wC := at(t, m, 1, 0, 0)

	edit, err := m.DeleteElement(wC.ID)
	require.NoError(t, err)
	require.Empty(t, edit.Replacements)

	require.Equal(t, []string{p1.ID}, childIDs(t, m))
	require.Equal(t, "A B.", contents(t, m, at(t, m).ID))
	require.NoError(t, m.CheckInvariants())
}

func TestDeleteElement_LastParagraphLeavesEmptyDocument(t *testing.T) {
	t.Parallel()

	m := newModel(t, "Only.")
	_, err := m.DeleteElement(at(t, m, 0, 0, 0).ID)
	require.NoError(t, err)

	root := at(t, m)
	require.Equal(t, store.KindDocument, root.Kind)
	require.Empty(t, root.Children)
	require.Equal(t, "", contents(t, m, root.ID))
}

func TestDeleteElement_Errors(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)

	_, err := m.DeleteElement(at(t, m).ID)
	require.ErrorIs(t, err, store.ErrCannotDeleteDocument)

	_, err = m.DeleteElement("missing")
	require.ErrorIs(t, err, store.ErrElementNotFound)

	wA := at(t, m, 0, 0, 0)
	_, err = m.DeleteElement(wA.ID)
	require.NoError(t, err)
	_, err = m.DeleteElement(wA.ID)
	require.ErrorIs(t, err, store.ErrNotInCurrentVersion)
}

func TestAddAfter(t *testing.T) {
	t.Parallel()

	t.Run("words", func(t *testing.T) {
		m := newModel(t, sample)
		sEF := at(t, m, 1, 1)
		wE := at(t, m, 1, 1, 0)
		edit, err := m.AddAfter(wE.ID, "and more")
		require.NoError(t, err)
		require.Len(t, edit.Replacements, 2)
		require.Equal(t, "E and more F.", contents(t, m, at(t, m, 1, 1).ID))
		require.NotEqual(t, sEF.ID, at(t, m, 1, 1).ID)
		require.Equal(t, wE.ID, at(t, m, 1, 1, 0).ID)
	})

	t.Run("sentences", func(t *testing.T) {
		m := newModel(t, sample)
		sCD, sEF := at(t, m, 1, 0), at(t, m, 1, 1)
		_, err := m.AddAfter(sCD.ID, "X Y. Z!")
		require.NoError(t, err)
		ids := childIDs(t, m, 1)
		require.Len(t, ids, 4)
		require.Equal(t, sCD.ID, ids[0])
		require.Equal(t, sEF.ID, ids[3])
		require.Equal(t, "C D. X Y. Z! E F.", contents(t, m, at(t, m, 1).ID))
	})

	t.Run("paragraph at the end", func(t *testing.T) {
		m := newModel(t, sample)
		p2 := at(t, m, 1)
		_, err := m.AddAfter(p2.ID, "New one.")
		require.NoError(t, err)
		ids := childIDs(t, m)
		require.Len(t, ids, 3)
		require.Equal(t, p2.ID, ids[1])
		require.Equal(t, sample+"\n\nNew one.", contents(t, m, at(t, m).ID))
		require.NoError(t, m.CheckInvariants())
	})

	t.Run("errors", func(t *testing.T) {
		m := newModel(t, sample)
		_, err := m.AddAfter(at(t, m).ID, "X.")
		require.ErrorIs(t, err, store.ErrNoParent)

		_, err = m.AddAfter(at(t, m, 0).ID, "  ")
		require.ErrorIs(t, err, store.ErrEmptyContents)

		_, err = m.AddAfter("missing", "X.")
		require.ErrorIs(t, err, store.ErrElementNotFound)
		require.Equal(t, 2, m.LatestVersionNumber())
	})
}

func TestSwitchToVersion(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	v2Root := at(t, m)
	wE := at(t, m, 1, 1, 0)

	_, err := m.UpdateElement(wE.ID, "X")
	require.NoError(t, err)
	newE := at(t, m, 1, 1, 0)

	require.NoError(t, m.SwitchToVersion(2))
	require.Equal(t, v2Root.ID, at(t, m).ID)
	require.Equal(t, sample, contents(t, m, at(t, m).ID))
	require.Zero(t, m.ValidateParentMap())

	// The element from version 3 is not part of version 2
	_, err = m.UpdateElement(newE.ID, "Y")
	require.ErrorIs(t, err, store.ErrNotInCurrentVersion)
	_, ok := m.Parent(newE.ID)
	require.False(t, ok)

	// Editing an older version branches to a new, highest number
	edit, err := m.UpdateElement(wE.ID, "Z")
	require.NoError(t, err)
	require.Equal(t, 4, edit.Version)
	require.Equal(t, "A B.\n\nC D. Z F.", contents(t, m, at(t, m).ID))

	err = m.SwitchToVersion(99)
	require.ErrorIs(t, err, store.ErrVersionNotFound)
	require.Equal(t, 4, m.CurrentVersionNumber())
}

// failingStore refuses to record versions while failVersions is set
type failingStore struct {
	*store.MemoryStore
	failVersions bool
}

func (f *failingStore) AddVersion(rootID string) (int, error) {
	if f.failVersions {
		return 0, store.ErrJournalFailed
	}
	return f.MemoryStore.AddVersion(rootID)
}

func TestFailedEditLeavesCurrentVersion(t *testing.T) {
	t.Parallel()

	fs := &failingStore{MemoryStore: store.NewMemoryStore()}
	m, err := New(fs, WithSeedText(sample))
	require.NoError(t, err)
	root := at(t, m)
	wE := at(t, m, 1, 1, 0)

	fs.failVersions = true
	_, err = m.UpdateElement(wE.ID, "X Y")
	require.ErrorIs(t, err, store.ErrJournalFailed)
	_, err = m.AddAnnotation(wE.ID, store.AnnotationComment, "note")
	require.ErrorIs(t, err, store.ErrJournalFailed)

	require.Equal(t, 2, m.CurrentVersionNumber())
	require.Equal(t, root.ID, at(t, m).ID)
	require.Zero(t, m.ValidateParentMap())
	parent, ok := m.Parent(wE.ID)
	require.True(t, ok)
	require.Equal(t, at(t, m, 1, 1).ID, parent)

	fs.failVersions = false
	_, err = m.UpdateElement(wE.ID, "X")
	require.NoError(t, err)
	require.Equal(t, 3, m.CurrentVersionNumber())
	require.NoError(t, m.CheckInvariants())
}

type recordedEdit struct {
	op  string
	err error
}

type fakeRecorder struct {
	edits  []recordedEdit
	exact  int
	fresh  int
	latest int
}

func (r *fakeRecorder) ObserveEdit(op string, _ time.Duration, err error) {
	r.edits = append(r.edits, recordedEdit{op, err})
}

func (r *fakeRecorder) ObserveReuse(exact, _, fresh int) {
	r.exact += exact
	r.fresh += fresh
}

func (r *fakeRecorder) ObserveVersion(latest int) { r.latest = latest }

func TestRecorderSeesEdits(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	m, err := New(store.NewMemoryStore(), WithRecorder(rec), WithSeedText(sample))
	require.NoError(t, err)
	require.Len(t, rec.edits, 1)
	require.Equal(t, "update_element", rec.edits[0].op)
	require.Equal(t, 2, rec.latest)

	rec.exact, rec.fresh = 0, 0
	_, err = m.UpdateElement(at(t, m, 1, 1).ID, "E X.")
	require.NoError(t, err)
	require.Equal(t, 1, rec.exact)
	require.Equal(t, 1, rec.fresh)

	_, err = m.DeleteElement(at(t, m).ID)
	require.Error(t, err)
	last := rec.edits[len(rec.edits)-1]
	require.Equal(t, "delete_element", last.op)
	require.ErrorIs(t, last.err, store.ErrCannotDeleteDocument)
	require.Equal(t, 3, rec.latest)
}

func TestOutline(t *testing.T) {
	t.Parallel()

	m := newModel(t, "Hi there.")
	var buf bytes.Buffer
	require.NoError(t, m.Outline(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "document "))
	require.True(t, strings.HasPrefix(lines[1], "  paragraph "))
	require.True(t, strings.HasPrefix(lines[2], "    sentence "))
	require.True(t, strings.HasSuffix(lines[3], `"Hi"`))
	require.True(t, strings.HasSuffix(lines[4], `"there."`))
}

func TestCheckInvariants_DetectsCorruptCache(t *testing.T) {
	t.Parallel()

	m := newModel(t, sample)
	wE := at(t, m, 1, 1, 0)
	m.parents[wE.ID] = "somewhere-else"

	require.Equal(t, 1, m.ValidateParentMap())
	err := m.CheckInvariants()
	require.ErrorIs(t, err, store.ErrParentCache)
	require.ErrorIs(t, err, store.ErrInconsistentState)

	// A version switch rebuilds the cache wholesale
	require.NoError(t, m.SwitchToVersion(m.CurrentVersionNumber()))
	require.NoError(t, m.CheckInvariants())
}

func TestModelOverJournalStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.journal")
	js, err := store.OpenJournalStore(path, zerolog.Nop())
	require.NoError(t, err)

	m, err := New(js, WithSeedText(sample))
	require.NoError(t, err)
	_, err = m.UpdateElement(at(t, m, 1, 1, 0).ID, "X")
	require.NoError(t, err)
	annID, err := m.AddAnnotation(at(t, m, 1, 1).ID, store.AnnotationQuestion, "why X?")
	require.NoError(t, err)
	require.NoError(t, m.SwitchToVersion(3))
	require.NoError(t, js.Close())

	reopened, err := store.OpenJournalStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	m2, err := New(reopened, WithSeedText("ignored."))
	require.NoError(t, err)
	require.Equal(t, 3, m2.CurrentVersionNumber())
	require.Equal(t, 4, m2.LatestVersionNumber())
	require.Equal(t, "A B.\n\nC D. X F.", contents(t, m2, at(t, m2).ID))

	require.NoError(t, m2.SwitchToVersion(4))
	anns := m2.AnnotationsFor(at(t, m2, 1, 1).ID)
	require.Len(t, anns, 1)
	require.Equal(t, annID, anns[0].ID)
	require.NoError(t, m2.CheckInvariants())
}
