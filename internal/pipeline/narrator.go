package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"surveychat/internal/logging"
)

const narrationSystemPrompt = `You are a data analyst explaining survey query results to a non-technical reader.

Rules:
1. Answer the user's question directly using only the rows provided. Never invent numbers.
2. If the result set is empty, say that no responses matched and suggest loosening the question.
3. If an error is reported, explain plainly that the query could not be run and relay the error message; do not speculate about fixes.
4. Do not repeat or rewrite the SQL unless asked.
5. Keep it to a short paragraph.`

// maxNarratedRows caps how many rows are quoted into the narration
// prompt. Large result sets get a truncation note instead.
const maxNarratedRows = 25

// Narrate produces a conversational reading of an envelope. Narration is
// best-effort: when the model call fails, a deterministic plain rendering
// is returned so the caller always has something to show.
func (o *Orchestrator) Narrate(ctx context.Context, question string, env Envelope) string {
	if o.narrator == nil {
		return PlainRender(env)
	}

	stageCtx, cancel := o.stageContext(ctx, o.timeouts.Narration)
	defer cancel()

	text, err := o.narrator.CompleteWithSystem(stageCtx, narrationSystemPrompt, narrationUserPrompt(question, env))
	if err != nil {
		logging.Narration("narration failed, falling back to plain rendering: %v", err)
		return PlainRender(env)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return PlainRender(env)
	}
	return text
}

func narrationUserPrompt(question string, env Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION:\n%s\n\n", question)
	fmt.Fprintf(&b, "SQL USED:\n%s\n\n", env.SQLQuery)

	switch {
	case env.IsError():
		fmt.Fprintf(&b, "RESULT: the query failed with this error:\n%s\n", env.Error)
	case len(env.Data) == 0:
		b.WriteString("RESULT: the query ran successfully but returned no rows.\n")
	default:
		fmt.Fprintf(&b, "RESULT (%d rows):\n", len(env.Data))
		rows := env.Data
		truncated := false
		if len(rows) > maxNarratedRows {
			rows = rows[:maxNarratedRows]
			truncated = true
		}
		for _, row := range rows {
			b.WriteString(renderRow(row))
			b.WriteString("\n")
		}
		if truncated {
			fmt.Fprintf(&b, "(%d further rows omitted)\n", len(env.Data)-maxNarratedRows)
		}
	}
	return b.String()
}

// PlainRender is the deterministic no-model rendering of an envelope.
func PlainRender(env Envelope) string {
	switch {
	case env.IsError():
		return fmt.Sprintf("The query could not be executed: %s", env.Error)
	case len(env.Data) == 0:
		return "The query ran successfully but no responses matched."
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "The query returned %d row(s):\n", len(env.Data))
		for _, row := range env.Data {
			b.WriteString("  ")
			b.WriteString(renderRow(row))
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}
}

// renderRow prints a row with keys in stable order.
func renderRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
	}
	return strings.Join(parts, ", ")
}
