package llm

import (
	"strings"

	"github.com/openai/openai-go"
)

// paramRule describes how a model family accepts generation parameters.
// This branching is provider behavior, not a design choice: reasoning
// models reject the classic max_tokens parameter and only honor their
// default temperature. Adding a family is a data change here, not a new
// code path.
type paramRule struct {
	// useCompletionCap selects max_completion_tokens over max_tokens.
	useCompletionCap bool

	// allowTemperature permits a custom sampling temperature. Families
	// with false only support the provider default.
	allowTemperature bool
}

// paramRules maps a model identifier prefix to its parameter shape.
// Longest matching prefix wins; models with no match use defaultRule.
var paramRules = map[string]paramRule{
	"gpt-5": {useCompletionCap: true, allowTemperature: false},
	"o1":    {useCompletionCap: true, allowTemperature: false},
	"o3":    {useCompletionCap: true, allowTemperature: false},
	"o4":    {useCompletionCap: true, allowTemperature: false},
}

// defaultRule covers classic chat models: max_tokens plus temperature.
var defaultRule = paramRule{useCompletionCap: false, allowTemperature: true}

// ruleForModel resolves the parameter rule for a model identifier.
func ruleForModel(model string) paramRule {
	rule := defaultRule
	matched := -1
	for prefix, r := range paramRules {
		if strings.HasPrefix(model, prefix) && len(prefix) > matched {
			rule = r
			matched = len(prefix)
		}
	}
	return rule
}

// buildCompletionParams assembles the request for the configured model,
// applying per-call overrides and the family's parameter shape.
func (c *Client) buildCompletionParams(messages []Message, opts CompletionOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.chatModel),
		Messages: toProviderMessages(messages),
	}

	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := c.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	rule := ruleForModel(c.chatModel)
	if rule.useCompletionCap {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	} else {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if rule.allowTemperature {
		params.Temperature = openai.Float(temperature)
	}

	return params
}

// toProviderMessages maps chat turns to the SDK union type, preserving
// order and content verbatim.
func toProviderMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
