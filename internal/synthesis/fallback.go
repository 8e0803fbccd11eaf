package synthesis

import (
	"fmt"
	"strings"

	"surveychat/internal/logging"
	"surveychat/internal/retrieval"
)

// maxFallbackColumns caps how many guessed columns a template selects.
const maxFallbackColumns = 6

// contextExcerptLen bounds the context excerpt embedded in the template.
const contextExcerptLen = 160

// FallbackBuilder constructs a best-effort template query from retrieved
// context when the synthesizer could not derive one. The result is
// syntactically valid but intentionally incomplete; the TODO markers are
// the explicit signal that this degraded path was taken.
type FallbackBuilder struct {
	opts      Options
	stopwords map[string]bool
}

// NewFallbackBuilder creates a FallbackBuilder.
func NewFallbackBuilder(opts Options) *FallbackBuilder {
	stop := make(map[string]bool, len(opts.Stopwords)+1)
	for _, w := range opts.Stopwords {
		stop[strings.ToLower(w)] = true
	}
	// The table's own name is never a column guess.
	stop[strings.ToLower(opts.Table)] = true
	return &FallbackBuilder{opts: opts, stopwords: stop}
}

// Build returns a template query for the question. Never returns "".
func (b *FallbackBuilder) Build(question, contextText string) string {
	timer := logging.StartTimer(logging.CategorySynthesis, "BuildFallback")
	defer timer.Stop()

	var columns []string
	if contextText != retrieval.NoContextMarker {
		// The no-context marker must not tokenize into column guesses.
		columns = b.guessColumns(contextText)
	}
	if len(columns) == 0 {
		columns = b.opts.DefaultColumns
		logging.Synthesis("fallback: no candidate columns survived filtering, using defaults %v", columns)
	} else {
		logging.SynthesisDebug("fallback: guessed columns %v", columns)
	}

	var selects []string
	for _, col := range columns {
		selects = append(selects, fmt.Sprintf("CAST(%s AS NUMERIC) AS %s", col, col))
	}

	var sentinels []string
	for _, code := range AllSentinels() {
		sentinels = append(sentinels, "'"+code+"'")
	}

	var sb strings.Builder
	sb.WriteString("-- TODO: fallback template query, verify columns against the codebook\n")
	sb.WriteString(fmt.Sprintf("-- TODO: original question: %s\n", oneLine(question)))
	sb.WriteString(fmt.Sprintf("-- TODO: context excerpt: %s\n", oneLine(excerpt(contextText))))
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(fmt.Sprintf("\nFROM %q", b.opts.Table))
	sb.WriteString(fmt.Sprintf("\nWHERE %s NOT IN (%s)", columns[0], strings.Join(sentinels, ", ")))
	sb.WriteString("\nLIMIT 100")
	return sb.String()
}

// guessColumns extracts plausible column names from the retrieved context:
// identifier-shaped tokens minus stopwords, with well-known columns first,
// capped at maxFallbackColumns.
func (b *FallbackBuilder) guessColumns(contextText string) []string {
	lowered := strings.ToLower(contextText)

	seen := make(map[string]bool)
	var candidates []string
	for _, tok := range identifierPattern.FindAllString(lowered, -1) {
		if b.stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		candidates = append(candidates, tok)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Well-known columns go first when they literally appear in context.
	var ordered []string
	used := make(map[string]bool)
	for _, col := range b.opts.PriorityColumns {
		if seen[strings.ToLower(col)] {
			ordered = append(ordered, strings.ToLower(col))
			used[strings.ToLower(col)] = true
		}
	}
	for _, tok := range candidates {
		if !used[tok] {
			ordered = append(ordered, tok)
		}
	}

	if len(ordered) > maxFallbackColumns {
		ordered = ordered[:maxFallbackColumns]
	}
	return ordered
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > contextExcerptLen {
		return s[:contextExcerptLen] + "..."
	}
	return s
}

// oneLine keeps embedded text on a single comment line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
