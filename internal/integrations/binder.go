package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sendloop/sendloop/internal/agent"
	"github.com/sendloop/sendloop/internal/store"
)

// Binder turns a user's connected integrations into callable tools.
type Binder struct {
	registry *Registry
	conns    store.IntegrationStore
}

func NewBinder(registry *Registry, conns store.IntegrationStore) *Binder {
	return &Binder{registry: registry, conns: conns}
}

// BindTools returns one tool per action of every integration the user has
// both activated and connected. Tool names are "{integrationID}_{action}".
// Credentials stay inside the bound closure; they never appear in the
// tool's name, description, or parameter schema.
func (b *Binder) BindTools(ctx context.Context, userID string) ([]agent.Tool, error) {
	records, err := b.conns.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations for %s: %w", userID, err)
	}

	var tools []agent.Tool
	for _, rec := range records {
		if !rec.Active || rec.Status != store.IntegrationConnected {
			continue
		}
		in, ok := b.registry.Lookup(rec.IntegrationID)
		if !ok {
			slog.Warn("connected integration has no executor", "integration", rec.IntegrationID, "user_id", userID)
			continue
		}
		for actionName, action := range in.Actions() {
			tools = append(tools, &boundTool{
				name:   rec.IntegrationID + "_" + actionName,
				action: action,
				record: rec,
			})
		}
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools, nil
}

// boundTool is one action bound to one user's connection record.
type boundTool struct {
	name   string
	action ActionConfig
	record store.IntegrationRecord
}

func (t *boundTool) Name() string        { return t.name }
func (t *boundTool) Description() string { return t.action.Description }

func (t *boundTool) Parameters() map[string]any {
	if t.action.InputSchema != nil {
		return t.action.InputSchema
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *boundTool) Execute(ctx context.Context, args map[string]any) *agent.Result {
	if err := ValidateArgs(t.action.InputSchema, args); err != nil {
		return agent.ErrorResult(fmt.Sprintf("Invalid arguments: %v", err))
	}
	out, err := t.action.Execute(ctx, args, t.record)
	if err != nil {
		slog.Warn("integration action failed", "tool", t.name, "user_id", t.record.UserID, "error", err)
		return agent.ErrorResult(fmt.Sprintf("The %s action failed: %v", t.action.Title, err)).WithError(err)
	}
	return agent.NewResult(out)
}

var _ agent.Tool = (*boundTool)(nil)
