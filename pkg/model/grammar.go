package model

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nainya/texttree/pkg/reuse"
	"github.com/nainya/texttree/pkg/store"
)

// level describes how text at one kind is segmented and re-joined
type level struct {
	// child is the kind one level down; zero for words
	child store.Kind

	// split breaks text into parts of this kind
	split func(text string) []string

	// join glues the text of children back together
	join string

	// tokens is the tokenizer used when elements of this kind are matched
	// as children: their text is compared at the granularity below them
	tokens reuse.Tokenizer
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

var grammar = map[store.Kind]level{
	store.KindDocument: {
		child:  store.KindParagraph,
		split:  func(text string) []string { return []string{text} },
		join:   "\n\n",
		tokens: splitWords,
	},
	store.KindParagraph: {
		child:  store.KindSentence,
		split:  splitParagraphs,
		join:   " ",
		tokens: splitSentences,
	},
	store.KindSentence: {
		child:  store.KindWord,
		split:  splitSentences,
		join:   " ",
		tokens: splitWords,
	},
	store.KindWord: {
		split:  splitWords,
		tokens: func(text string) []string { return []string{text} },
	},
}

// splitWords splits on runs of whitespace
func splitWords(text string) []string {
	return strings.Fields(text)
}

// splitParagraphs splits on blank lines and drops blank parts
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// splitSentences splits on whitespace that directly follows '.', '!' or '?'
func splitSentences(text string) []string {
	var out []string
	emit := func(s string) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) || i == 0 || !isTerminal(text[i-1]) {
			i += size
			continue
		}

		end := i
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		emit(text[start:end])
		start = i
	}
	emit(text[start:])
	return out
}

// childKind returns the kind one level below k
func childKind(k store.Kind) store.Kind {
	return grammar[k].child
}

// splitAs segments text into parts of kind k
func splitAs(k store.Kind, text string) []string {
	return grammar[k].split(text)
}
