// Package tagging turns free text (OCR output, captions, queries) into normalized tag tokens.
package tagging

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/timmy/memetag/internal/domain"
)

// MinTokenRunes is the shortest word kept from OCR output and captions.
const MinTokenRunes = 3

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the a an is are was were be been being have has had having do does did doing
		of at by for with about against between into through during before after above below
		to from up down in out on off over under again further then once here there when where
		why how all any both each few more most other some such no nor not only own same
		so than too very s t can will just don should now d ll m o re ve y ain aren
		couldn didn doesn hadn hasn haven isn ma mightn mustn needn shan shouldn wasn weren won wouldn`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether w is dropped from extracted text.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

func fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFKC.String(s))
}

func isEdge(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
}

// Normalize lowercases s, collapses inner whitespace and strips leading and trailing
// punctuation. The result may be empty.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(fold(s)), " ")
	return strings.TrimFunc(s, isEdge)
}

// cleanWord keeps only the letters and digits of a single word.
func cleanWord(w string) string {
	var b strings.Builder
	for _, r := range fold(w) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FromText splits OCR fragments into words and returns the sorted, deduplicated
// alphanumeric words of at least MinTokenRunes runes that are not stop words.
func FromText(fragments ...string) []string {
	set := make(map[string]struct{})
	for _, fragment := range fragments {
		for _, word := range strings.Fields(fragment) {
			w := cleanWord(word)
			if utf8.RuneCountInString(w) < MinTokenRunes || IsStopWord(w) {
				continue
			}
			set[w] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// FromCaption extracts manual tags from an upload caption. Stop words are kept
// since the uploader chose them on purpose.
func FromCaption(caption string) []string {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(caption) {
		w := cleanWord(word)
		if utf8.RuneCountInString(w) < MinTokenRunes {
			continue
		}
		set[w] = struct{}{}
	}
	return sortedKeys(set)
}

// Merge returns the sorted union of normalized tag sets, skipping empty tags.
func Merge(sets ...[]string) []string {
	set := make(map[string]struct{})
	for _, tags := range sets {
		for _, tag := range tags {
			if t := Normalize(tag); t != "" {
				set[t] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// QueryTokens tokenizes a raw query. An empty or whitespace-only query yields no
// tokens and no error. maxLen <= 0 disables the length check.
func QueryTokens(raw string, maxLen int) ([]string, error) {
	if !utf8.ValidString(raw) {
		return nil, fmt.Errorf("%w: not valid UTF-8", domain.ErrMalformedQuery)
	}
	if maxLen > 0 && utf8.RuneCountInString(raw) > maxLen {
		return nil, fmt.Errorf("%w: longer than %d characters", domain.ErrMalformedQuery, maxLen)
	}
	seen := make(map[string]struct{})
	var tokens []string
	for _, field := range strings.Fields(raw) {
		t := Normalize(field)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
