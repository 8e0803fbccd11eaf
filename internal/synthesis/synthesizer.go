// Package synthesis turns a natural-language question plus retrieved
// codebook context into a single candidate SQL statement, with a heuristic
// fallback template when the model reports it cannot derive a query.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"surveychat/internal/llm"
	"surveychat/internal/logging"
)

// ErrSuggestionFailed marks a synthesis failure: the generation call
// errored or produced output that violates the query contract. Distinct
// from the empty-string candidate, which is the model's legitimate
// "cannot determine a query" answer.
var ErrSuggestionFailed = errors.New("sql suggestion failed")

// Turn is one conversation turn, passed through as read-only prompt context.
type Turn struct {
	Role    string `json:"role"` // user, assistant, or tool
	Content string `json:"content"`
}

// Synthesizer generates candidate SQL via constrained prompting.
type Synthesizer struct {
	client llm.Client
	opts   Options
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(client llm.Client, opts Options) *Synthesizer {
	return &Synthesizer{client: client, opts: opts}
}

// Synthesize produces a candidate SQL statement, or "" when the model
// legitimately cannot derive one. Errors wrap ErrSuggestionFailed.
func (s *Synthesizer) Synthesize(ctx context.Context, question, contextText string, history []Turn) (string, error) {
	timer := logging.StartTimer(logging.CategorySynthesis, "Synthesize")
	defer timer.Stop()

	systemPrompt := BuildSystemPrompt(s.opts.Table)
	userPrompt := BuildUserPrompt(question, contextText, history)

	raw, err := s.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSuggestionFailed, err)
	}

	candidate := cleanCandidate(raw)
	if candidate == "" {
		logging.Synthesis("model reported no derivable query")
		return "", nil
	}

	if err := s.validate(candidate); err != nil {
		logging.Get(logging.CategorySynthesis).Warn("rejecting candidate: %v", err)
		return "", fmt.Errorf("%w: %v", ErrSuggestionFailed, err)
	}

	logging.SynthesisDebug("candidate accepted (%d chars)", len(candidate))
	return candidate, nil
}

// cleanCandidate normalizes raw model output into a candidate query:
// markdown fences and surrounding whitespace are stripped, trailing
// semicolons removed, and the NO_QUERY sentinel mapped to "".
func cleanCandidate(raw string) string {
	out := strings.TrimSpace(raw)

	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```sql")
		out = strings.TrimPrefix(out, "```")
		out = strings.TrimSuffix(strings.TrimSpace(out), "```")
		out = strings.TrimSpace(out)
	}

	if strings.EqualFold(out, noQuerySentinel) {
		return ""
	}

	for strings.HasSuffix(out, ";") {
		out = strings.TrimSpace(strings.TrimSuffix(out, ";"))
	}
	return out
}

// validate enforces the parts of the prompt contract that are checkable
// without parsing SQL: the fixed table is referenced in double quotes, no
// foreign quoted identifier appears, and the statement is read-only.
func (s *Synthesizer) validate(candidate string) error {
	quotedTable := `"` + s.opts.Table + `"`
	if !strings.Contains(candidate, quotedTable) {
		return fmt.Errorf("candidate does not reference %s", quotedTable)
	}

	for _, m := range quotedIdentPattern.FindAllStringSubmatch(candidate, -1) {
		if m[1] != s.opts.Table {
			return fmt.Errorf("candidate references forbidden quoted identifier %q", m[1])
		}
	}

	first := strings.ToUpper(firstWord(candidate))
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("candidate is not a read-only statement (starts with %s)", first)
	}
	return nil
}

func firstWord(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
