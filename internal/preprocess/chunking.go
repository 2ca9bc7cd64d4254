package preprocess

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// DefaultChunkSize is the chunk length of code_chunking in characters.
const DefaultChunkSize = 60

// javaSeparators are tried in order; later ones split finer.
var javaSeparators = []string{
	"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\nstatic ",
	"\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ",
	"\n\n", "\n", " ", "",
}

// buildCodeChunking splits source code into chunks of at most chunk_size
// characters, preferring declaration and statement boundaries.
//
// Arguments: language (required, only "java"), chunk_size.
func buildCodeChunking(args map[string]any) (SplitFunc, error) {
	language, err := config.RequiredString(args, "language")
	if err != nil {
		return nil, err
	}
	if language != "java" {
		return nil, fmt.Errorf("%w: code chunking for language %q", config.ErrNotSupported, language)
	}
	size, err := config.Int(args, "chunk_size", DefaultChunkSize)
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", config.ErrConfiguration, size)
	}

	c := chunker{size: size, separators: javaSeparators}
	return func(_ context.Context, artifact *types.Element) ([]*types.Element, error) {
		out := []*types.Element{artifact}
		for i, chunk := range c.Split(artifact.Content) {
			out = append(out, child(artifact, i, artifact.Type, chunk, true))
		}
		return out, nil
	}, nil
}

// chunker splits text recursively: pieces longer than size are split again
// with the next separator, short neighbouring pieces are merged back up to
// size. Separators stay attached to the piece they introduce.
type chunker struct {
	size       int
	separators []string
}

// Split returns the non-empty, whitespace trimmed chunks of text.
func (c chunker) Split(text string) []string {
	return c.split(text, c.separators)
}

func (c chunker) split(text string, separators []string) []string {
	sep, rest := "", []string(nil)
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}

	var out, short []string
	for _, piece := range splitKeep(text, sep) {
		if utf8.RuneCountInString(piece) < c.size {
			short = append(short, piece)
			continue
		}
		out = append(out, c.merge(short)...)
		short = nil
		if len(rest) == 0 {
			out = appendTrimmed(out, piece)
		} else {
			out = append(out, c.split(piece, rest)...)
		}
	}
	return append(out, c.merge(short)...)
}

func (c chunker) merge(pieces []string) []string {
	var out []string
	var current strings.Builder
	length := 0
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if length > 0 && length+n > c.size {
			out = appendTrimmed(out, current.String())
			current.Reset()
			length = 0
		}
		current.WriteString(p)
		length += n
	}
	return appendTrimmed(out, current.String())
}

// splitKeep splits text before every occurrence of sep. An empty sep splits
// into runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		return strings.Split(text, "")
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}
