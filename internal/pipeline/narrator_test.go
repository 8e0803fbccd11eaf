package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveychat/internal/execution"
)

func TestNarrate_UsesModelReply(t *testing.T) {
	client := &scriptedLLM{reply: "Germany had the most respondents with 2358."}
	o := newTestOrchestrator(&fakeSearcher{}, client, &fakeBackend{})

	env := NewEnvelope("SELECT 1", "ctx", execution.RowsResult([]execution.Row{
		{"cntry": "DE", "n": float64(2358)},
	}))

	got := o.Narrate(context.Background(), "Which country had the most respondents?", env)
	assert.Equal(t, "Germany had the most respondents with 2358.", got)

	require.NotEmpty(t, client.prompts)
	prompt := client.prompts[len(client.prompts)-1]
	assert.Contains(t, prompt, "Which country had the most respondents?")
	assert.Contains(t, prompt, "cntry=DE")
}

func TestNarrate_ModelFailureFallsBackToPlainRendering(t *testing.T) {
	client := &scriptedLLM{err: errors.New("quota exceeded")}
	o := newTestOrchestrator(&fakeSearcher{}, client, &fakeBackend{})

	env := NewEnvelope("SELECT 1", "ctx", execution.EmptyResult())

	got := o.Narrate(context.Background(), "Anything?", env)
	assert.Equal(t, PlainRender(env), got)
}

func TestNarrate_NilNarratorUsesPlainRendering(t *testing.T) {
	o := New(nil, nil, nil, nil, nil, 0, Timeouts{})

	env := NewEnvelope("SELECT 1", "ctx", execution.ErrorResult("backend down"))
	assert.Equal(t, PlainRender(env), o.Narrate(context.Background(), "Anything?", env))
}

func TestPlainRender(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		env := NewEnvelope("SELECT 1", "", execution.ErrorResult("query rejected: syntax error"))
		assert.Contains(t, PlainRender(env), "syntax error")
	})

	t.Run("empty", func(t *testing.T) {
		env := NewEnvelope("SELECT 1", "", execution.EmptyResult())
		assert.Contains(t, PlainRender(env), "no responses matched")
	})

	t.Run("rows keep stable key order", func(t *testing.T) {
		env := NewEnvelope("SELECT 1", "", execution.RowsResult([]execution.Row{
			{"n": float64(3), "cntry": "FI", "avg": 5.5},
		}))
		assert.Contains(t, PlainRender(env), "avg=5.5, cntry=FI, n=3")
	})
}

func TestNarrationPrompt_TruncatesLargeResultSets(t *testing.T) {
	rows := make([]execution.Row, maxNarratedRows+10)
	for i := range rows {
		rows[i] = execution.Row{"n": float64(i)}
	}
	env := NewEnvelope("SELECT 1", "", execution.RowsResult(rows))

	prompt := narrationUserPrompt("q", env)
	assert.Contains(t, prompt, "10 further rows omitted")
}
