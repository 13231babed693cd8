package resolver

import (
	"fmt"
	"strings"

	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// maxHistoryTurns bounds how many past (question, answer) pairs are replayed
// to the model, keeping the input budget independent of session age.
const maxHistoryTurns = 5

// buildSystemPrompt produces the translation contract sent to the model. The
// model only ever sees the dataset profile, never raw rows beyond the sample
// the profile itself carries.
func buildSystemPrompt(prof string) string {
	var b strings.Builder

	b.WriteString(`You translate questions about a fleet trip-log spreadsheet into a structured query plan.
You are a TRANSLATOR ONLY: never compute values yourself, the engine executes the plan locally.

DATASET PROFILE:
`)
	b.WriteString(prof)
	b.WriteString(`
RESPOND WITH A SINGLE JSON OBJECT, no markdown, matching exactly:
{
  "filters": [{"column": "...", "operator": "eq|neq|gt|gte|lt|lte|contains", "value": "..."}],
  "group_by": ["column"],
  "aggregations": [{"column": "...", "operator": "count|sum|avg|min|max", "alias": "..."}],
  "sort": {"column": "...", "descending": true},
  "limit": 0
}

RULES:
- Reference only column names that appear in the profile, spelled exactly.
- "count" may leave "column" empty to count rows.
- sum/avg require a numeric column; min/max require a numeric or date column.
- gt/gte/lt/lte require a numeric or date column; contains requires a text column.
- "sort.column" must name a group_by column or an aggregation alias (or its default name "operator_column").
- For ranking questions with no explicit metric ("top drivers"), group by the entity and count rows, sorted descending.
- Omit "limit" or use 0 for all rows; use a small limit for "top N" questions.
- If the question cannot be answered from these columns, respond with {"error": "reason"}.
`)
	return b.String()
}

// historyMessages replays the tail of the conversation so follow-up questions
// ("and for last month?") resolve against earlier context.
func historyMessages(history []models.HistoryEntry) []string {
	start := 0
	if len(history) > maxHistoryTurns {
		start = len(history) - maxHistoryTurns
	}
	out := make([]string, 0, (len(history)-start)*2)
	for _, h := range history[start:] {
		out = append(out, h.Question, h.Answer.Text)
	}
	return out
}

// stripFences removes markdown code fences some models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func describePlan(plan models.QueryPlan) string {
	parts := make([]string, 0, 4)
	if len(plan.Filters) > 0 {
		parts = append(parts, fmt.Sprintf("%d filters", len(plan.Filters)))
	}
	if len(plan.GroupBy) > 0 {
		parts = append(parts, "group by "+strings.Join(plan.GroupBy, ","))
	}
	for _, a := range plan.Aggregations {
		parts = append(parts, a.Operator+"("+a.Column+")")
	}
	if plan.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit %d", plan.Limit))
	}
	if len(parts) == 0 {
		return "projection"
	}
	return strings.Join(parts, " ")
}
