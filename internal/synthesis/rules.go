package synthesis

import "regexp"

// SentinelFamilies are the missing-value code families used by the survey
// dataset (refusal / don't know / no answer). Storage is textual, so codes
// are compared as string literals. Kept as configuration-level data so the
// families can be tuned without touching the prompt or the fallback builder.
var SentinelFamilies = [][]string{
	{"7", "8", "9"},
	{"77", "88", "99"},
	{"777", "888", "999"},
	{"7777", "8888", "9999"},
}

// AllSentinels flattens the sentinel families in ascending-width order.
func AllSentinels() []string {
	var out []string
	for _, family := range SentinelFamilies {
		out = append(out, family...)
	}
	return out
}

// identifierPattern matches word-like tokens that could be column names.
// Survey variable names are short lowercase identifiers (trstprl, agea).
var identifierPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]{2,}`)

// quotedIdentPattern matches double-quoted identifiers in a SQL statement.
// Used to verify that the only quoted name is the fixed table.
var quotedIdentPattern = regexp.MustCompile(`"([^"]+)"`)

// Options configures the synthesizer and the fallback builder for one
// dataset. All lists come from configuration, not code.
type Options struct {
	// Table is the one table every query must reference, double-quoted.
	Table string

	// Stopwords are removed from context tokens before guessing columns.
	Stopwords []string

	// PriorityColumns are placed first when they appear in the context.
	PriorityColumns []string

	// DefaultColumns are used when no candidate survives filtering.
	DefaultColumns []string
}
