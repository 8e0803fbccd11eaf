package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveychat/internal/codebook"
	"surveychat/internal/execution"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	tool := &Tool{
		Name:        "noop",
		Description: "does nothing",
		Execute:     func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil },
	}

	require.NoError(t, r.Register(tool))
	assert.True(t, r.Has("noop"))
	assert.Nil(t, r.Get("missing"))

	out, err := r.Call(context.Background(), "noop", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	tool := &Tool{
		Name:    "dup",
		Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	}

	require.NoError(t, r.Register(tool))
	assert.ErrorIs(t, r.Register(tool), ErrToolAlreadyRegistered)
}

func TestRegistry_RejectsInvalidTools(t *testing.T) {
	r := NewRegistry()

	err := r.Register(&Tool{Name: "", Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }})
	assert.ErrorIs(t, err, ErrToolNameEmpty)

	err = r.Register(&Tool{Name: "broken"})
	assert.ErrorIs(t, err, ErrToolExecuteNil)
}

func TestRegistry_CallUnknownTool(t *testing.T) {
	_, err := NewRegistry().Call(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestOrchestrator_StandardTools(t *testing.T) {
	searcher := &fakeSearcher{passages: []codebook.Passage{
		{Content: "agea: Age of respondent, calculated.", Similarity: 0.9},
	}}
	client := &scriptedLLM{reply: `SELECT agea FROM "survey_responses" LIMIT 3`}
	backend := &fakeBackend{rows: []execution.Row{{"agea": float64(42)}}}
	o := newTestOrchestrator(searcher, client, backend)

	assert.Equal(t, []string{"execute_sql", "retrieve_context", "synthesize_sql"}, o.Tools().Names())

	t.Run("retrieve_context", func(t *testing.T) {
		out, err := o.Tools().Call(context.Background(), "retrieve_context", map[string]any{"question": "respondent age"})
		require.NoError(t, err)
		assert.Contains(t, out, "Age of respondent")
	})

	t.Run("synthesize_sql", func(t *testing.T) {
		out, err := o.Tools().Call(context.Background(), "synthesize_sql", map[string]any{"question": "respondent age"})
		require.NoError(t, err)
		assert.Contains(t, out, `FROM "survey_responses"`)
	})

	t.Run("execute_sql", func(t *testing.T) {
		out, err := o.Tools().Call(context.Background(), "execute_sql", map[string]any{"sql": `SELECT agea FROM "survey_responses" LIMIT 3`})
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(out), &env))
		require.Len(t, env.Data, 1)
		assert.Equal(t, float64(42), env.Data[0]["agea"])
	})

	t.Run("missing arguments are rejected", func(t *testing.T) {
		_, err := o.Tools().Call(context.Background(), "retrieve_context", map[string]any{})
		assert.ErrorContains(t, err, "question")

		_, err = o.Tools().Call(context.Background(), "execute_sql", map[string]any{"sql": "   "})
		assert.ErrorContains(t, err, "sql must not be empty")
	})
}
