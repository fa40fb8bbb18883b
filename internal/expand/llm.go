package expand

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tapcard/contact-search/internal/cost"
	"github.com/tapcard/contact-search/pkg/anthropic"
)

const expandSystemPrompt = `You expand short contact-search terms into a list of synonyms, role variants, and related terms to improve recall against an embedding index. Reply with a single line of space-separated terms, nothing else. Include the original term. Match the language of the input and add English equivalents for non-English roles.`

// AnthropicLLM expands queries with a Claude messages call.
type AnthropicLLM struct {
	client anthropic.Client
	calc   *cost.Calculator
	model  string
}

// NewAnthropicLLM creates the LLM expansion layer.
func NewAnthropicLLM(client anthropic.Client, calc *cost.Calculator, model string) *AnthropicLLM {
	return &AnthropicLLM{client: client, calc: calc, model: model}
}

func (l *AnthropicLLM) ExpandQuery(ctx context.Context, raw, lang string) (*LLMOutcome, error) {
	temp := 0.3
	resp, err := l.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       l.model,
		MaxTokens:   256,
		System:      expandSystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Language: " + lang + "\nTerm: " + raw},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "expand: llm call")
	}

	enhanced := strings.TrimSpace(resp.Text)
	if enhanced == "" {
		return nil, eris.New("expand: llm returned empty expansion")
	}

	return &LLMOutcome{
		Enhanced: enhanced,
		Model:    l.model,
		CostUSD:  l.calc.LLM(l.model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)),
	}, nil
}
