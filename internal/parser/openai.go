package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"jobalertbot/internal/alert"
	"jobalertbot/pkg/logx"
)

// OpenAI parses free text with a chat completion constrained to a JSON
// reply. A malformed or unusable model reply is reported as a parse
// failure, not an error: the user re-phrases, the core does not retry.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	log         logx.Logger
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

func NewOpenAI(cfg OpenAIConfig, log logx.Logger) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &OpenAI{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		log:         log,
	}
}

const parsePrompt = `Extract job search criteria from the user's message.

Return ONLY a JSON object with this structure (omit unknown fields):
{
    "query": "job title or role",
    "location": "city or region",
    "remote": true,
    "keywords": ["keyword1", "keyword2"],
    "period": "hourly|daily|weekly"
}

If the message does not describe a job search at all, return {"query": ""}.

Message: %s`

func (p *OpenAI) Parse(ctx context.Context, freeText string, userID int64) (Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(parsePrompt, freeText)},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("chat completion: empty response")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = stripCodeFence(raw)

	var c alert.SearchCriteria
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		p.log.Warn("unparseable model reply", logx.Int64("user_id", userID), logx.Err(err))
		return failure("I couldn't understand that description. Try something like \"Senior Go Engineer in Berlin, remote, daily\"."), nil
	}
	return validate(c)
}

// stripCodeFence tolerates models that wrap JSON in ``` blocks.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func validate(c alert.SearchCriteria) (Result, error) {
	c.Period = strings.ToLower(strings.TrimSpace(c.Period))
	if strings.TrimSpace(c.Query) == "" {
		return failure("I couldn't find a job title or role in that. What position are you looking for?", "query"), nil
	}
	if c.Period != "" {
		if _, err := alert.ScheduleForPeriod(c.Period); err != nil {
			return failure(fmt.Sprintf("I don't support the period %q. Use one of: %s.", c.Period, strings.Join(alert.KnownPeriods(), ", ")), "period"), nil
		}
	}
	return Result{Success: true, Criteria: &c}, nil
}
