package groups

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/budget"
	"github.com/tapcard/contact-search/internal/cost"
	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/tier"
	"github.com/tapcard/contact-search/pkg/anthropic"
)

const groupingSystemPrompt = `You organize a person's professional contacts into meaningful groups. Given a JSON list of contacts, respond with ONLY a JSON array of groups, no prose. Each group: {"name": string, "description": string, "contact_ids": [string]}. Group by shared company, industry, role, event, or location. Every group needs at least 2 contacts. Prefer specific names ("Acme Engineering") over generic ones ("Work Contacts").`

// aiGroup is the shape the model is asked to emit.
type aiGroup struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ContactIDs  []string `json:"contact_ids"`
}

// Enhancer generates groups with a Claude messages call. It is tier-gated
// (pro and above) and budget-gated before the call.
type Enhancer struct {
	client anthropic.Client
	gate   *budget.Gate
	calc   *cost.Calculator
	model  string
	log    *zap.Logger
}

func NewEnhancer(client anthropic.Client, gate *budget.Gate, calc *cost.Calculator, llmModel string, log *zap.Logger) *Enhancer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enhancer{client: client, gate: gate, calc: calc, model: llmModel, log: log}
}

// Generate asks the LLM to group the given contacts. Returns the parsed
// groups and the actual spend. Unknown contact ids in the model output are
// dropped; groups left with fewer than two contacts are discarded.
func (e *Enhancer) Generate(ctx context.Context, user model.User, contacts []model.Contact) ([]model.Group, float64, error) {
	if err := tier.GateAIGrouping(tier.Name(user.Tier)); err != nil {
		return nil, 0, err
	}

	payload, err := contactsPayload(contacts)
	if err != nil {
		return nil, 0, err
	}

	// Estimate with the 4-chars-per-token heuristic plus response headroom.
	estimate := e.calc.LLM(e.model, len(payload)/4+len(groupingSystemPrompt)/4, 1024)
	if err := e.gate.CanAfford(ctx, user, estimate, model.RunTypeAI); err != nil {
		return nil, 0, err
	}

	temp := 0.2
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   2048,
		System:      groupingSystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: payload},
		},
	})
	if err != nil {
		return nil, 0, &model.ProviderError{Provider: "anthropic", Err: err}
	}

	spent := e.calc.LLM(e.model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	if err := e.gate.RecordUsage(ctx, model.UsageRecord{
		UserID:   user.ID,
		Cost:     spent,
		Model:    e.model,
		Feature:  "ai_grouping",
		Metadata: map[string]any{"contacts": len(contacts)},
		RunType:  model.RunTypeAI,
		Billable: true,
	}); err != nil {
		e.log.Warn("failed to record grouping usage", zap.String("user_id", user.ID), zap.Error(err))
	}

	parsed, err := parseGroups(resp.Text)
	if err != nil {
		return nil, spent, err
	}

	known := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		known[c.ID] = struct{}{}
	}

	out := make([]model.Group, 0, len(parsed))
	for _, g := range parsed {
		if strings.TrimSpace(g.Name) == "" {
			continue
		}
		ids := make([]string, 0, len(g.ContactIDs))
		for _, id := range g.ContactIDs {
			if _, ok := known[id]; ok {
				ids = append(ids, id)
			}
		}
		ids = model.DedupeContactIDs(ids)
		if len(ids) < 2 {
			continue
		}
		out = append(out, model.Group{
			UserID:      user.ID,
			Name:        strings.TrimSpace(g.Name),
			Type:        model.GroupTypeAI,
			Description: strings.TrimSpace(g.Description),
			ContactIDs:  ids,
		})
	}
	return out, spent, nil
}

// contactsPayload renders contacts as compact JSON for the prompt. Only
// grouping-relevant fields are included.
func contactsPayload(contacts []model.Contact) (string, error) {
	type promptContact struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Company  string `json:"company,omitempty"`
		JobTitle string `json:"job_title,omitempty"`
		Location string `json:"location,omitempty"`
		Notes    string `json:"notes,omitempty"`
	}
	pcs := make([]promptContact, 0, len(contacts))
	for _, c := range contacts {
		pcs = append(pcs, promptContact{
			ID: c.ID, Name: c.Name, Company: c.Company,
			JobTitle: c.JobTitle, Location: c.Location, Notes: c.Notes,
		})
	}
	data, err := json.Marshal(pcs)
	if err != nil {
		return "", eris.Wrap(err, "groups: marshal prompt contacts")
	}
	return fmt.Sprintf("Contacts:\n%s", data), nil
}

// parseGroups extracts the JSON array from the model's reply, tolerating
// surrounding prose or markdown fences.
func parseGroups(text string) ([]aiGroup, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.New("groups: no JSON array in model output")
	}
	var parsed []aiGroup
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, eris.Wrap(err, "groups: parse model output")
	}
	return parsed, nil
}
