// Package textutil holds the text normalization, sentence splitting and
// tokenization shared by the chunker, the embedders and the reference loader.
package textutil

import (
	"regexp"
	"strings"
)

var (
	tokenPattern      = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentenceEndSuffix = regexp.MustCompile(`[.!?]+["'”’)\]]*$`)
)

// Normalize removes NUL bytes and collapses every whitespace run into a single space.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.Join(strings.Fields(text), " ")
}

// Clean is the extraction-side cleanup: NUL bytes become spaces before whitespace is collapsed.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	return strings.Join(strings.Fields(text), " ")
}

// WordCount returns the number of whitespace separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// LastWords returns the last n whitespace separated words of text joined by single spaces.
// Fewer words are returned when text is shorter than n.
func LastWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// Sentences splits text into sentences. A sentence ends at a word whose tail is
// terminal punctuation, optionally followed by closing quotes or brackets. Words
// are never split, so the word count of all sentences equals that of text.
func Sentences(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var (
		out     []string
		current []string
	)
	for _, w := range words {
		current = append(current, w)
		if sentenceEndSuffix.MatchString(w) {
			out = append(out, strings.Join(current, " "))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// Tokenize lowercases text and returns its word tokens with stopwords removed.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// IsStopword reports whether token is in the built-in English stopword list.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
