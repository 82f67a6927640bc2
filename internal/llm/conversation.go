package llm

import (
	"context"
	"fmt"

	"mathviz/internal/logging"
	"mathviz/internal/tokenutil"
)

const (
	DefaultMaxToolRounds  = 5
	DefaultTokenBudget    = 12000
	minToolResultTokens   = 64
	toolBudgetExhaustNote = "Tool call budget exhausted. Answer now using the information gathered so far."
)

// ConversationOptions bounds a tool-calling exchange.
type ConversationOptions struct {
	MaxRounds   int
	TokenBudget int
	// CountTokens defaults to tokenutil.CountTokens.
	CountTokens tokenutil.Counter
}

// Conversation is the message state of one tool-calling exchange. The system
// and initial user messages are pinned; everything after them is dropped
// oldest-group-first whenever the transcript exceeds the token budget.
type Conversation struct {
	messages    []Message
	pinned      int
	round       int
	maxRounds   int
	tokenBudget int
	count       tokenutil.Counter
}

// NewConversation starts a conversation with a system and user message.
func NewConversation(system, user string, opts ConversationOptions) *Conversation {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxToolRounds
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	if opts.CountTokens == nil {
		opts.CountTokens = tokenutil.CountTokens
	}
	var messages []Message
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, Message{Role: RoleUser, Content: user})
	return &Conversation{
		messages:    messages,
		pinned:      len(messages),
		maxRounds:   opts.MaxRounds,
		tokenBudget: opts.TokenBudget,
		count:       opts.CountTokens,
	}
}

// Messages returns a copy of the current transcript.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Round is the number of completed tool rounds.
func (c *Conversation) Round() int { return c.round }

// Exhausted reports whether no further tool rounds are allowed.
func (c *Conversation) Exhausted() bool { return c.round >= c.maxRounds }

// Tokens returns the token count of the whole transcript.
func (c *Conversation) Tokens() int {
	total := 0
	for _, msg := range c.messages {
		total += c.messageTokens(msg)
	}
	return total
}

func (c *Conversation) messageTokens(msg Message) int {
	n := c.count(msg.Content)
	for _, tc := range msg.ToolCalls {
		n += c.count(tc.Name) + c.count(encodeArguments(tc.Arguments))
	}
	return n
}

// RecordToolRound appends the assistant's tool request and the results of
// executing it, then advances the round counter.
func (c *Conversation) RecordToolRound(assistant Message, results []Message) {
	c.messages = append(c.messages, assistant)
	c.messages = append(c.messages, results...)
	c.round++
	c.truncate()
}

// AddUserNote appends a user message outside the round accounting.
func (c *Conversation) AddUserNote(content string) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: content})
}

// truncate drops the oldest unpinned tool groups until the transcript fits.
// When a single group remains over budget its tool results are shortened.
func (c *Conversation) truncate() {
	for c.Tokens() > c.tokenBudget {
		end := c.groupEnd(c.pinned)
		if end >= len(c.messages) {
			break
		}
		c.messages = append(c.messages[:c.pinned], c.messages[end:]...)
	}
	if c.Tokens() <= c.tokenBudget {
		return
	}
	over := c.Tokens() - c.tokenBudget
	for i := c.pinned; i < len(c.messages) && over > 0; i++ {
		if c.messages[i].Role != RoleTool {
			continue
		}
		current := c.count(c.messages[i].Content)
		keep := current - over
		if keep < minToolResultTokens {
			keep = minToolResultTokens
		}
		if keep >= current {
			continue
		}
		c.messages[i].Content = shrink(c.messages[i].Content, keep, current)
		over -= current - c.count(c.messages[i].Content)
	}
}

// shrink keeps roughly keep/current of content, measured in runes, so it
// works with whatever counter the conversation uses.
func shrink(content string, keep, current int) string {
	runes := []rune(content)
	cut := len(runes) * keep / current
	if cut >= len(runes) {
		return content
	}
	return string(runes[:cut]) + "\n[truncated]"
}

// groupEnd returns the index one past the tool group starting at start: an
// assistant message followed by its tool results.
func (c *Conversation) groupEnd(start int) int {
	if start >= len(c.messages) {
		return start
	}
	end := start + 1
	for end < len(c.messages) && c.messages[end].Role == RoleTool {
		end++
	}
	return end
}

// RunToolLoop completes req inside conv, executing any requested tools
// until the model returns a final answer or the round budget is spent.
// req.Messages is ignored; the conversation supplies the transcript.
func RunToolLoop(ctx context.Context, client Client, conv *Conversation, req CompletionRequest, tools []Tool, logger logging.Logger) (*CompletionResponse, error) {
	logger = logging.OrNop(logger)
	byName := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		byName[def.Name] = tool
		req.Tools = append(req.Tools, def)
	}
	declared := req.Tools

	for {
		req.Messages = conv.Messages()
		if conv.Exhausted() {
			req.Tools = nil
		} else {
			req.Tools = declared
		}

		resp, err := client.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 || len(req.Tools) == 0 {
			return resp, nil
		}

		results := make([]Message, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, Message{
				Role:       RoleTool,
				ToolCallID: call.ID,
				Content:    executeTool(ctx, byName, call, logger),
			})
		}
		conv.RecordToolRound(Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}, results)
		logger.Debug("tool round %d complete (%d calls, ~%d tokens)", conv.Round(), len(resp.ToolCalls), conv.Tokens())
		if conv.Exhausted() {
			conv.AddUserNote(toolBudgetExhaustNote)
		}
	}
}

func executeTool(ctx context.Context, tools map[string]Tool, call ToolCall, logger logging.Logger) string {
	tool, ok := tools[call.Name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}
	out, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		logger.Warn("tool %s failed: %v", call.Name, err)
		return fmt.Sprintf("error: %v", err)
	}
	return out
}
