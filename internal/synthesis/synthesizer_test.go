package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns a fixed response (or error) and records prompts.
type scriptedClient struct {
	response   string
	err        error
	lastSystem string
	lastUser   string
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.lastSystem = systemPrompt
	c.lastUser = userPrompt
	return c.response, c.err
}

func testOptions() Options {
	return Options{
		Table:           "survey_responses",
		Stopwords:       []string{"the", "data", "variable", "table", "trust", "country", "scale", "parliament"},
		PriorityColumns: []string{"cntry", "trstprl", "agea", "gndr"},
		DefaultColumns:  []string{"cntry", "agea"},
	}
}

func TestSynthesize_CleanCandidate(t *testing.T) {
	client := &scriptedClient{
		response: "```sql\nSELECT cntry, COUNT(*) AS n FROM \"survey_responses\" GROUP BY cntry;\n```",
	}
	s := NewSynthesizer(client, testOptions())

	got, err := s.Synthesize(context.Background(), "count respondents per country", "cntry country code", nil)
	require.NoError(t, err)

	assert.Equal(t, `SELECT cntry, COUNT(*) AS n FROM "survey_responses" GROUP BY cntry`, got)
	assert.False(t, strings.HasSuffix(got, ";"))
	// Exactly one double-quoted identifier: the table.
	matches := quotedIdentPattern.FindAllStringSubmatch(got, -1)
	require.Len(t, matches, 1)
	assert.Equal(t, "survey_responses", matches[0][1])
}

func TestSynthesize_NoQuerySentinelYieldsEmpty(t *testing.T) {
	client := &scriptedClient{response: "NO_QUERY"}
	s := NewSynthesizer(client, testOptions())

	got, err := s.Synthesize(context.Background(), "what is the meaning of life", "(no codebook context retrieved)", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSynthesize_ModelFailureWrapsErrSuggestionFailed(t *testing.T) {
	client := &scriptedClient{err: errors.New("deadline exceeded")}
	s := NewSynthesizer(client, testOptions())

	_, err := s.Synthesize(context.Background(), "q", "ctx", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSuggestionFailed)
}

func TestSynthesize_RejectsForeignTable(t *testing.T) {
	client := &scriptedClient{
		response: `SELECT * FROM "users" JOIN "survey_responses" ON 1=1`,
	}
	s := NewSynthesizer(client, testOptions())

	_, err := s.Synthesize(context.Background(), "q", "ctx", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSuggestionFailed)
	assert.ErrorContains(t, err, "users")
}

func TestSynthesize_RejectsMissingTable(t *testing.T) {
	client := &scriptedClient{response: "SELECT cntry FROM survey_responses"}
	s := NewSynthesizer(client, testOptions())

	_, err := s.Synthesize(context.Background(), "q", "ctx", nil)
	assert.ErrorIs(t, err, ErrSuggestionFailed)
}

func TestSynthesize_RejectsMutatingStatement(t *testing.T) {
	client := &scriptedClient{response: `DELETE FROM "survey_responses"`}
	s := NewSynthesizer(client, testOptions())

	_, err := s.Synthesize(context.Background(), "q", "ctx", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSuggestionFailed)
}

func TestSynthesize_HistoryAppearsInPrompt(t *testing.T) {
	client := &scriptedClient{response: `SELECT cntry FROM "survey_responses"`}
	s := NewSynthesizer(client, testOptions())

	history := []Turn{
		{Role: "user", Content: "average trust in parliament in France"},
		{Role: "assistant", Content: "The average is 4.2."},
	}
	_, err := s.Synthesize(context.Background(), "and for Germany?", "trstprl cntry", history)
	require.NoError(t, err)

	assert.Contains(t, client.lastUser, "average trust in parliament in France")
	assert.Contains(t, client.lastUser, "and for Germany?")
	assert.Contains(t, client.lastUser, "CODEBOOK CONTEXT")
}

func TestBuildSystemPrompt_ContractRules(t *testing.T) {
	prompt := BuildSystemPrompt("survey_responses")

	assert.Contains(t, prompt, `"survey_responses"`)
	assert.Contains(t, prompt, "CAST(column AS NUMERIC)")
	assert.Contains(t, prompt, "NOT IN")
	assert.Contains(t, prompt, "NO_QUERY")
	assert.Contains(t, prompt, "semicolon")
	// The standard two-digit sentinel family is spelled out.
	assert.Contains(t, prompt, "77")
	assert.Contains(t, prompt, "99")
}

func TestCleanCandidate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `SELECT 1 FROM "t"`, `SELECT 1 FROM "t"`},
		{"trailing semicolon", `SELECT 1 FROM "t";`, `SELECT 1 FROM "t"`},
		{"stacked semicolons", `SELECT 1 FROM "t" ; ;`, `SELECT 1 FROM "t"`},
		{"sql fence", "```sql\nSELECT 1 FROM \"t\"\n```", `SELECT 1 FROM "t"`},
		{"bare fence", "```\nSELECT 1 FROM \"t\";\n```", `SELECT 1 FROM "t"`},
		{"sentinel", "NO_QUERY", ""},
		{"sentinel lowercase", "no_query", ""},
		{"whitespace", "  \n ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanCandidate(tc.in))
		})
	}
}

func TestSentinelFamilies(t *testing.T) {
	all := AllSentinels()
	assert.Contains(t, all, "7")
	assert.Contains(t, all, "99")
	assert.Contains(t, all, "888")
	assert.Contains(t, all, "9999")
	assert.Len(t, all, 12)
}
