package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/llm"
)

// Status is the outcome of one step for one candidate.
type Status int

const (
	// Unrelated drops the candidate.
	Unrelated Status = iota
	// Related accepts the candidate.
	Related
	// Continue carries the candidate into the next step.
	Continue
)

func (s Status) String() string {
	switch s {
	case Related:
		return "related"
	case Continue:
		return "continue"
	default:
		return "unrelated"
	}
}

// StatusFunc maps a raw oracle response to a Status.
type StatusFunc func(output string) Status

// ContainsTag returns a StatusFunc that looks for the first <tag>...</tag>
// pair in the lowercased output and yields positive when the enclosed text
// contains text. A missing tag yields negative.
func ContainsTag(tag, text string, positive, negative Status) StatusFunc {
	pattern := regexp.MustCompile("<" + regexp.QuoteMeta(strings.ToLower(tag)) + ">(.*?)</" + regexp.QuoteMeta(strings.ToLower(tag)) + ">")
	text = strings.ToLower(text)
	return func(output string) Status {
		m := pattern.FindStringSubmatch(strings.ToLower(output))
		if m != nil && strings.Contains(m[1], text) {
			return positive
		}
		return negative
	}
}

// ContainsText returns a StatusFunc yielding positive when the lowercased
// output contains text anywhere.
func ContainsText(text string, positive, negative Status) StatusFunc {
	text = strings.ToLower(text)
	return func(output string) Status {
		if strings.Contains(strings.ToLower(output), text) {
			return positive
		}
		return negative
	}
}

// Placeholders a template may reference.
const (
	SourceType        = "source_type"
	TargetType        = "target_type"
	SourceContent     = "source_content"
	TargetContent     = "target_content"
	SourceContextPre  = "source_context_pre"
	SourceContextPost = "source_context_post"
	TargetContextPre  = "target_context_pre"
	TargetContextPost = "target_context_post"
)

var (
	knownPlaceholders = []string{
		SourceType, TargetType, SourceContent, TargetContent,
		SourceContextPre, SourceContextPost, TargetContextPre, TargetContextPost,
	}
	placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// Step is one prompt of a classifier together with the function that
// interprets its response.
type Step struct {
	Messages []llm.Message
	Status   StatusFunc

	uses map[string]bool
}

// NewStep validates the placeholders of messages and builds a step.
func NewStep(messages []llm.Message, status StatusFunc) (Step, error) {
	if len(messages) == 0 {
		return Step{}, fmt.Errorf("%w: step without messages", config.ErrConfiguration)
	}
	if status == nil {
		return Step{}, fmt.Errorf("%w: step without status function", config.ErrConfiguration)
	}
	uses := map[string]bool{}
	for _, m := range messages {
		for _, match := range placeholderPattern.FindAllStringSubmatch(m.Content, -1) {
			name := match[1]
			known := false
			for _, p := range knownPlaceholders {
				if p == name {
					known = true
					break
				}
			}
			if !known {
				return Step{}, fmt.Errorf("%w: unknown template placeholder {%s}", config.ErrConfiguration, name)
			}
			uses[name] = true
		}
	}
	return Step{Messages: messages, Status: status, uses: uses}, nil
}

// mustStep is NewStep for the built-in prompt library.
func mustStep(messages []llm.Message, status StatusFunc) Step {
	s, err := NewStep(messages, status)
	if err != nil {
		panic(err)
	}
	return s
}

// Uses reports whether any message references the placeholder.
func (s Step) Uses(placeholder string) bool {
	return s.uses[placeholder]
}

// Render fills every placeholder from values. Substitution is a single pass,
// so placeholder syntax inside values is left untouched.
func (s Step) Render(values map[string]string) []llm.Message {
	pairs := make([]string, 0, 2*len(knownPlaceholders))
	for _, p := range knownPlaceholders {
		pairs = append(pairs, "{"+p+"}", values[p])
	}
	r := strings.NewReplacer(pairs...)

	out := make([]llm.Message, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = llm.Message{Role: m.Role, Content: r.Replace(m.Content)}
	}
	return out
}
