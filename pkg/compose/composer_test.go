package compose

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/llm"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, kv ...interface{}) {}
func (nopLogger) Info(msg string, kv ...interface{})  {}
func (nopLogger) Warn(msg string, kv ...interface{})  {}
func (nopLogger) Error(msg string, kv ...interface{}) {}

type stubClient struct {
	reply string
	err   error
	last  []llm.Message
}

func (s *stubClient) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	s.last = messages
	return s.reply, s.err
}

func sampleResult() *models.ExecutionResult {
	return &models.ExecutionResult{
		Columns:      []string{"driver", "count"},
		Rows:         [][]interface{}{{"B", int64(25)}, {"A", int64(10)}},
		TotalMatched: 2,
	}
}

func TestCompose_EmbedsResultVerbatim(t *testing.T) {
	client := &stubClient{reply: "  Driver B leads with 25 trips.  "}
	c := New(client, nopLogger{})

	result := sampleResult()
	answer, err := c.Compose(context.Background(), "who drives most?", result)
	require.NoError(t, err)

	assert.Equal(t, "Driver B leads with 25 trips.", answer.Text)
	assert.Same(t, result, answer.Result, "the computed result is attached untouched")
	assert.False(t, answer.Failed)

	// The model sees the question and the rendered table.
	require.Len(t, client.last, 2)
	assert.Contains(t, client.last[1].Content, "who drives most?")
	assert.Contains(t, client.last[1].Content, "B | 25")
}

func TestCompose_ModelFailurePropagates(t *testing.T) {
	client := &stubClient{err: coreerrors.ErrModelUnavailable}
	c := New(client, nopLogger{})

	_, err := c.Compose(context.Background(), "q", sampleResult())
	require.Error(t, err)
	assert.True(t, coreerrors.IsExternalService(err))
}

func TestRenderTable_Bounded(t *testing.T) {
	result := &models.ExecutionResult{Columns: []string{"n"}}
	for i := 0; i < 10; i++ {
		result.Rows = append(result.Rows, []interface{}{int64(i)})
	}

	out := RenderTable(result, 3)
	assert.Equal(t, 3+2, strings.Count(out, "\n"), "header, three rows, ellipsis line")
	assert.Contains(t, out, "(7 more rows)")

	full := RenderTable(result, 0)
	assert.NotContains(t, full, "more rows")
}

func TestFormatCell(t *testing.T) {
	date := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"Ana", "Ana"},
		{int64(42), "42"},
		{12.5, "12.5"},
		{true, "true"},
		{date, "2026-01-02"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCell(tt.in))
	}
}
