package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveychat/internal/codebook"
	"surveychat/internal/execution"
	"surveychat/internal/retrieval"
	"surveychat/internal/synthesis"
)

type fakeSearcher struct {
	passages []codebook.Passage
	err      error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int) ([]codebook.Passage, error) {
	return f.passages, f.err
}

type scriptedLLM struct {
	reply   string
	err     error
	prompts []string
}

func (c *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptedLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.prompts = append(c.prompts, userPrompt)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type fakeBackend struct {
	rows    []execution.Row
	err     error
	panics  bool
	lastSQL string
}

func (f *fakeBackend) Execute(ctx context.Context, sql string) ([]execution.Row, error) {
	f.lastSQL = sql
	if f.panics {
		panic("backend exploded")
	}
	return f.rows, f.err
}

func testSynthOptions() synthesis.Options {
	return synthesis.Options{
		Table:           "survey_responses",
		Stopwords:       []string{"what", "is", "the", "average", "per", "by", "of", "in", "how", "many"},
		PriorityColumns: []string{"cntry", "trstprl", "agea", "gndr"},
		DefaultColumns:  []string{"cntry", "agea"},
	}
}

func newTestOrchestrator(searcher *fakeSearcher, client *scriptedLLM, backend execution.Backend) *Orchestrator {
	opts := testSynthOptions()
	return New(
		retrieval.New(searcher, 4),
		synthesis.NewSynthesizer(client, opts),
		synthesis.NewFallbackBuilder(opts),
		execution.NewExecutor(backend),
		client,
		4,
		Timeouts{},
	)
}

func TestAnswer_HappyPath(t *testing.T) {
	searcher := &fakeSearcher{passages: []codebook.Passage{
		{Content: "cntry: Country of respondent. ISO codes.", Similarity: 0.91},
	}}
	client := &scriptedLLM{reply: `SELECT cntry, COUNT(*) AS respondents FROM "survey_responses" GROUP BY cntry`}
	backend := &fakeBackend{rows: []execution.Row{
		{"cntry": "DE", "respondents": float64(2358)},
		{"cntry": "FR", "respondents": float64(1977)},
	}}

	env := newTestOrchestrator(searcher, client, backend).Answer(context.Background(), "How many respondents per country?", nil)

	require.False(t, env.IsError(), "unexpected error: %s", env.Error)
	assert.Contains(t, env.SQLQuery, "GROUP BY cntry")
	assert.Contains(t, env.RetrievedContext, "Country of respondent")
	require.Len(t, env.Data, 2)
	assert.Equal(t, "DE", env.Data[0]["cntry"])
	assert.Equal(t, env.SQLQuery, backend.lastSQL)
}

func TestAnswer_AggregateQueryPassesThroughUntouched(t *testing.T) {
	sql := `SELECT cntry, AVG(CAST(trstprl AS NUMERIC)) AS avg_trust FROM "survey_responses" WHERE trstprl NOT IN ('77', '88', '99') GROUP BY cntry`
	client := &scriptedLLM{reply: sql}
	backend := &fakeBackend{rows: []execution.Row{{"cntry": "NO", "avg_trust": 6.1}}}

	env := newTestOrchestrator(&fakeSearcher{}, client, backend).Answer(context.Background(), "Average trust in parliament by country?", nil)

	require.False(t, env.IsError())
	assert.Equal(t, sql, env.SQLQuery)
	assert.Equal(t, sql, backend.lastSQL)
}

func TestAnswer_RetrievalFailureIsNonFatal(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("store offline")}
	client := &scriptedLLM{reply: `SELECT cntry FROM "survey_responses" LIMIT 5`}
	backend := &fakeBackend{rows: []execution.Row{{"cntry": "SE"}}}

	env := newTestOrchestrator(searcher, client, backend).Answer(context.Background(), "Which countries are covered?", nil)

	require.False(t, env.IsError())
	assert.Equal(t, retrieval.NoContextMarker, env.RetrievedContext)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], retrieval.NoContextMarker)
}

func TestAnswer_SynthesisFailureIsFatal(t *testing.T) {
	searcher := &fakeSearcher{passages: []codebook.Passage{{Content: "gndr: Gender.", Similarity: 0.8}}}
	client := &scriptedLLM{err: errors.New("model overloaded")}
	backend := &fakeBackend{}

	env := newTestOrchestrator(searcher, client, backend).Answer(context.Background(), "Gender split?", nil)

	require.True(t, env.IsError())
	assert.Contains(t, env.Error, "sql suggestion failed")
	assert.Empty(t, env.SQLQuery)
	// Context gathered before the failure stays visible.
	assert.Contains(t, env.RetrievedContext, "Gender")
	assert.Empty(t, backend.lastSQL, "execution must not be attempted")
}

func TestAnswer_EmptySynthesisUsesFallback(t *testing.T) {
	searcher := &fakeSearcher{passages: []codebook.Passage{
		{Content: "trstprl: Trust in country's parliament, scale 0-10.", Similarity: 0.85},
	}}
	client := &scriptedLLM{reply: "NO_QUERY"}
	backend := &fakeBackend{rows: []execution.Row{{"trstprl": "5"}}}

	question := "Something about parliament trstprl maybe?"
	env := newTestOrchestrator(searcher, client, backend).Answer(context.Background(), question, nil)

	require.False(t, env.IsError())
	assert.True(t, strings.HasPrefix(env.SQLQuery, "--"), "fallback must be marked as a template")
	assert.Contains(t, env.SQLQuery, "TODO")
	assert.Contains(t, env.SQLQuery, question)
	assert.Contains(t, env.SQLQuery, `FROM "survey_responses"`)
	assert.Equal(t, env.SQLQuery, backend.lastSQL)
}

func TestAnswer_ExecutionFailurePreservesSQL(t *testing.T) {
	sql := `SELECT agea FROM "survey_responses" LIMIT 10`
	client := &scriptedLLM{reply: sql}
	backend := &fakeBackend{err: errors.New("sql backend unreachable: connection refused")}

	env := newTestOrchestrator(&fakeSearcher{}, client, backend).Answer(context.Background(), "Ages?", nil)

	require.True(t, env.IsError())
	assert.Contains(t, env.Error, "unreachable")
	// The attempted statement stays in the envelope for inspection.
	assert.Equal(t, sql, env.SQLQuery)
}

func TestAnswer_ZeroRowsIsEmptyDataNotError(t *testing.T) {
	client := &scriptedLLM{reply: `SELECT cntry FROM "survey_responses" WHERE cntry = 'XX'`}
	backend := &fakeBackend{rows: nil}

	env := newTestOrchestrator(&fakeSearcher{}, client, backend).Answer(context.Background(), "Respondents from XX?", nil)

	require.False(t, env.IsError())
	require.NotNil(t, env.Data)
	assert.Len(t, env.Data, 0)
}

func TestAnswer_EmptyQuestionRejected(t *testing.T) {
	client := &scriptedLLM{reply: "irrelevant"}

	env := newTestOrchestrator(&fakeSearcher{}, client, &fakeBackend{}).Answer(context.Background(), "", nil)

	assert.True(t, env.IsError())
	assert.Empty(t, client.prompts, "no model call for an empty question")
}

func TestAnswer_RecoversFromPanic(t *testing.T) {
	client := &scriptedLLM{reply: `SELECT cntry FROM "survey_responses"`}
	backend := &fakeBackend{panics: true}

	env := newTestOrchestrator(&fakeSearcher{}, client, backend).Answer(context.Background(), "Countries?", nil)

	require.True(t, env.IsError())
	assert.Contains(t, env.Error, "internal error")
}

func TestAnswer_HistoryReachesSynthesizer(t *testing.T) {
	client := &scriptedLLM{reply: `SELECT gndr FROM "survey_responses" LIMIT 5`}
	history := []synthesis.Turn{
		{Role: "user", Content: "How many women answered in Germany?"},
		{Role: "assistant", Content: "There were 1204 responses."},
	}

	newTestOrchestrator(&fakeSearcher{}, client, &fakeBackend{rows: []execution.Row{{"gndr": "2"}}}).
		Answer(context.Background(), "And in France?", history)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "How many women answered in Germany?")
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	original := NewEnvelope(
		`SELECT cntry FROM "survey_responses"`,
		"cntry: Country of respondent.",
		execution.RowsResult([]execution.Row{{"cntry": "DE"}}),
	)

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Errorf("envelope changed across JSON round trip (-want +got):\n%s", diff)
	}
}

func TestEnvelope_EmptyResultSerializesDataField(t *testing.T) {
	env := NewEnvelope("SELECT 1", "ctx", execution.EmptyResult())

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "error")
	assert.Contains(t, decoded, "sqlQuery")
	assert.Contains(t, decoded, "retrievedContext")
	// "ran fine, nothing matched" is an empty list, never an absent key.
	require.Contains(t, decoded, "data")
	assert.Equal(t, []any{}, decoded["data"])
}

func TestEnvelope_ErrorResultOmitsDataKey(t *testing.T) {
	env := NewEnvelope("SELECT 1", "ctx", execution.ErrorResult("boom"))

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "data")
	assert.Equal(t, "boom", decoded["error"])
}
