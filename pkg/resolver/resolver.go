// Package resolver maps a natural-language question plus a dataset profile
// into a validated query plan by delegating interpretation to an external
// language model under a strict response contract.
package resolver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/llm"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// Logger defines the logging interface the resolver depends on.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Resolver turns questions into executable plans.
type Resolver struct {
	client llm.Client
	logger Logger
}

// New creates a resolver backed by the given model client.
func New(client llm.Client, logger Logger) *Resolver {
	return &Resolver{client: client, logger: logger}
}

// modelReply is the constrained response contract: either a plan or an
// explicit refusal.
type modelReply struct {
	models.QueryPlan
	Error string `json:"error,omitempty"`
}

// Resolve produces a validated plan for a question. Model output referencing
// unknown columns or incompatible operator/type pairs fails with an
// unresolvable-query error rather than being coerced; the caller surfaces a
// clarification request. Ambiguous ranking questions fall back to the
// documented default of counting rows per group, descending.
func (r *Resolver) Resolve(ctx context.Context, question string, ds *dataset.Dataset, prof string, history []models.HistoryEntry) (models.QueryPlan, error) {
	messages := make([]llm.Message, 0, 2+2*maxHistoryTurns)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: buildSystemPrompt(prof)})
	turns := historyMessages(history)
	for i := 0; i+1 < len(turns); i += 2 {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turns[i]},
			llm.Message{Role: llm.RoleAssistant, Content: turns[i+1]})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	raw, err := r.client.Complete(ctx, messages)
	if err != nil {
		return models.QueryPlan{}, err
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		r.logger.Warn("Model returned unparseable plan", "error", err)
		return models.QueryPlan{}, errors.Wrap(err, errors.CodeUnresolvableQuery, "model returned an invalid plan")
	}
	if reply.Error != "" {
		return models.QueryPlan{}, errors.ErrUnresolvableQuery.WithDetail("reason", reply.Error)
	}

	plan := normalizePlan(reply.QueryPlan, ds)
	if err := ValidatePlan(plan, ds); err != nil {
		r.logger.Warn("Model plan failed validation", "error", err, "question", question)
		return models.QueryPlan{}, err
	}

	r.logger.Debug("Question resolved", "question", question, "plan", describePlan(plan))
	return plan, nil
}

// normalizePlan applies deterministic fixes for common model inconsistencies
// before validation. It canonicalizes column-name casing and fills the
// documented default for grouped plans with no metric: count rows per group,
// sorted descending.
func normalizePlan(plan models.QueryPlan, ds *dataset.Dataset) models.QueryPlan {
	for i := range plan.Filters {
		plan.Filters[i].Column = canonicalName(plan.Filters[i].Column, ds)
	}
	for i := range plan.GroupBy {
		plan.GroupBy[i] = canonicalName(plan.GroupBy[i], ds)
	}
	for i := range plan.Aggregations {
		if plan.Aggregations[i].Column != "" {
			plan.Aggregations[i].Column = canonicalName(plan.Aggregations[i].Column, ds)
		}
	}

	if len(plan.GroupBy) > 0 && len(plan.Aggregations) == 0 {
		plan.Aggregations = []models.Aggregation{{Operator: models.AggCount}}
		if plan.Sort == nil {
			plan.Sort = &models.SortSpec{Column: models.AggCount, Descending: true}
		}
	}
	return plan
}

// canonicalName maps a case-insensitive column reference onto the dataset's
// exact spelling. Unknown names pass through for validation to reject.
func canonicalName(name string, ds *dataset.Dataset) string {
	if _, ok := ds.ColumnIndex(name); ok {
		return name
	}
	for _, col := range ds.Columns() {
		if strings.EqualFold(col.Name, name) {
			return col.Name
		}
	}
	return name
}
