package preprocess

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// buildSimple uses the whole artifact as one comparable root element.
func buildSimple(map[string]any) (SplitFunc, error) {
	return func(_ context.Context, artifact *types.Element) ([]*types.Element, error) {
		return []*types.Element{
			types.NewElement(artifact.Identifier, artifact.Type, artifact.Content, nil, true),
		}, nil
	}, nil
}

// lineBreak matches every line boundary, including the ASCII separators and
// the Unicode next line, line and paragraph separators.
var lineBreak = regexp.MustCompile(`\r\n|[\n\r\v\f\x1c\x1d\x1e\x{85}\x{2028}\x{2029}]`)

// buildLine emits one element per non-empty line, numbered from 1.
func buildLine(map[string]any) (SplitFunc, error) {
	return func(_ context.Context, artifact *types.Element) ([]*types.Element, error) {
		out := []*types.Element{artifact}
		n := 1
		for _, line := range lineBreak.Split(artifact.Content, -1) {
			if line == "" {
				continue
			}
			out = append(out, child(artifact, n, artifact.Type, line, true))
			n++
		}
		return out, nil
	}, nil
}

// buildSentence emits one element per sentence, numbered from 0.
//
// Arguments: language (only "en"), clean_text (NFKC normalization before
// splitting).
func buildSentence(args map[string]any) (SplitFunc, error) {
	language, err := config.String(args, "language", "en")
	if err != nil {
		return nil, err
	}
	if language != "en" {
		return nil, fmt.Errorf("%w: sentence splitting for language %q", config.ErrNotSupported, language)
	}
	clean, err := config.Bool(args, "clean_text", false)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, artifact *types.Element) ([]*types.Element, error) {
		text := artifact.Content
		if clean {
			text = norm.NFKC.String(text)
		}
		out := []*types.Element{artifact}
		for i, s := range Sentences(text) {
			out = append(out, child(artifact, i, artifact.Type, s, true))
		}
		return out, nil
	}, nil
}

var paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n`)

var abbreviations = map[string]bool{
	"al": true, "approx": true, "cf": true, "co": true, "dr": true, "e.g": true,
	"etc": true, "fig": true, "i.e": true, "inc": true, "incl": true, "jr": true,
	"ltd": true, "mr": true, "mrs": true, "ms": true, "no": true, "prof": true,
	"resp": true, "sr": true, "st": true, "vs": true,
}

const (
	openers = "\"'([{“‘"
	closers = "\"')]}”’"
)

// Sentences splits English text into sentences. Blank lines always end a
// sentence; single line breaks are treated as spaces. Whitespace inside a
// sentence is collapsed.
func Sentences(text string) []string {
	var out []string
	for _, paragraph := range paragraphBreak.Split(text, -1) {
		words := strings.Fields(paragraph)
		start := 0
		for i, w := range words {
			if i+1 < len(words) && !endsSentence(w, words[i+1]) {
				continue
			}
			out = append(out, strings.Join(words[start:i+1], " "))
			start = i + 1
		}
	}
	return out
}

// endsSentence reports whether a sentence boundary lies between word and next.
func endsSentence(word, next string) bool {
	trimmed := strings.TrimRight(word, closers)
	if trimmed == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}

	stem := strings.ToLower(strings.TrimLeft(strings.TrimRight(trimmed, "."), openers))
	if abbreviations[stem] {
		return false
	}
	if r, size := utf8.DecodeRuneInString(stem); size == len(stem) && unicode.IsLetter(r) {
		return false
	}
	first, _ := utf8.DecodeRuneInString(strings.TrimLeft(next, openers))
	return !unicode.IsLower(first)
}
