package synthesis

import (
	"fmt"
	"strings"
)

// noQuerySentinel is the token the model must emit when no valid query can
// be derived. Mapped to the empty-string candidate by cleanCandidate.
const noQuerySentinel = "NO_QUERY"

// BuildSystemPrompt constructs the system prompt that constrains SQL
// generation. These rules are the correctness contract of the synthesizer.
func BuildSystemPrompt(table string) string {
	sentinels := strings.Join(AllSentinels(), ", ")
	return fmt.Sprintf(`You are a SQL query generator for a survey dataset stored in a single table. Convert the user's question into one valid read-only SQL query.

RULES:
1. Output ONLY the SQL query - no explanations, no markdown code blocks, no comments.
2. Reference exactly one table: "%s". Always write the table name in double quotes. No other table may appear.
3. Use only SELECT statements - never INSERT, UPDATE, DELETE, DROP, or any other modifying statement.
4. Column names must be taken verbatim from the CODEBOOK CONTEXT below. Never put column names in quotes. Never invent an intuitive column name that does not appear in the context - use the real abbreviated variable name (e.g. trstprl, not trust_in_parliament).
5. Every column is stored as TEXT. Any column used inside an aggregate function (AVG, SUM, MIN, MAX) must be cast first: CAST(column AS NUMERIC). COUNT(*) needs no cast.
6. Survey columns use missing-value sentinel codes (%s) for refusal/don't-know/no-answer. When you aggregate or filter such a column, exclude its codes with an explicit WHERE column NOT IN ('...') clause, comparing as string literals.
7. Do not end the statement with a semicolon.
8. Conversation history is provided only to resolve follow-up references ("and for Germany?"). It never changes rules 1-7.

If the question cannot be answered from the table and the codebook context, respond with exactly:
%s

EXAMPLES:

Question: "How many respondents per country?"
SELECT cntry, COUNT(*) AS respondents FROM "%s" GROUP BY cntry ORDER BY respondents DESC

Question: "Average trust in parliament per country?"
SELECT cntry, AVG(CAST(trstprl AS NUMERIC)) AS avg_trust FROM "%s" WHERE trstprl NOT IN ('77', '88', '99') GROUP BY cntry

Question: "What's the weather today?"
%s`, table, sentinels, noQuerySentinel, table, table, noQuerySentinel)
}

// BuildUserPrompt assembles the question, retrieved context, and optional
// history into the user message.
func BuildUserPrompt(question, contextText string, history []Turn) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("CONVERSATION HISTORY:\n")
		for _, turn := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
		b.WriteString("\n")
	}

	b.WriteString("CODEBOOK CONTEXT:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(question)
	return b.String()
}
