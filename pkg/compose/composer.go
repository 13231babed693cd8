// Package compose merges execution results with model-generated prose into
// the final answer. The result rows are always embedded verbatim; the model
// contributes framing only, never numeric content.
package compose

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mobilityedgeai/chatplanilha/pkg/llm"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// promptRowLimit bounds how many result rows are shown to the model. The
// full (display-bounded) result is still embedded in the answer.
const promptRowLimit = 50

// Logger defines the logging interface the composer depends on.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Composer builds answers from execution results.
type Composer struct {
	client llm.Client
	logger Logger
}

// New creates a composer backed by the given model client.
func New(client llm.Client, logger Logger) *Composer {
	return &Composer{client: client, logger: logger}
}

const systemPrompt = `You are an assistant for fleet and safety managers analyzing trip-log data.
You receive a question and the exact table computed for it. Write a short, clear answer in the language of the question.
Refer to the figures in the table exactly as given. Never invent, round, or re-compute numbers. Do not repeat the whole table.`

// Compose asks the model for a prose explanation of the result and attaches
// the result verbatim. A model failure is returned to the caller, which
// surfaces a temporary-unavailability answer.
func (c *Composer) Compose(ctx context.Context, question string, result *models.ExecutionResult) (models.Answer, error) {
	user := fmt.Sprintf("Question: %s\n\nComputed result (%d rows total):\n%s",
		question, result.TotalMatched, RenderTable(result, promptRowLimit))

	text, err := c.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		return models.Answer{}, err
	}

	return models.Answer{
		Text:   strings.TrimSpace(text),
		Result: result,
	}, nil
}

// RenderTable renders a result as pipe-separated text, bounded to maxRows.
func RenderTable(result *models.ExecutionResult, maxRows int) string {
	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")

	n := len(result.Rows)
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	for i := 0; i < n; i++ {
		cells := make([]string, len(result.Rows[i]))
		for j, v := range result.Rows[i] {
			cells[j] = FormatCell(v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if n < len(result.Rows) {
		fmt.Fprintf(&b, "... (%d more rows)\n", len(result.Rows)-n)
	}
	return b.String()
}

// FormatCell renders one typed cell for display; nulls render empty.
func FormatCell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format("2006-01-02")
	}
	return fmt.Sprintf("%v", v)
}
