package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordCount(text string) int { return len(strings.Fields(text)) }

type echoTool struct {
	calls int
}

func (t *echoTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "echoes the query",
		Parameters: ParameterSchema{
			Type:       "object",
			Properties: map[string]Property{"query": {Type: "string", Description: "text"}},
			Required:   []string{"query"},
		},
	}
}

func (t *echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	t.calls++
	return "echo: " + StringArg(args, "query"), nil
}

func toolCallResponse(id string) *CompletionResponse {
	return &CompletionResponse{ToolCalls: []ToolCall{{ID: id, Name: "echo", Arguments: map[string]any{"query": id}}}}
}

func TestRunToolLoopStopsAtRoundLimit(t *testing.T) {
	client := NewMockClient("test")
	client.Respond = func(req CompletionRequest) (*CompletionResponse, error) {
		if len(req.Tools) == 0 {
			return &CompletionResponse{Content: "final"}, nil
		}
		return toolCallResponse("call"), nil
	}
	tool := &echoTool{}
	conv := NewConversation("sys", "question", ConversationOptions{MaxRounds: 3, CountTokens: wordCount})

	resp, err := RunToolLoop(context.Background(), client, conv, CompletionRequest{}, []Tool{tool}, nil)
	require.NoError(t, err)
	assert.Equal(t, "final", resp.Content)
	assert.Equal(t, 3, conv.Round())
	assert.Equal(t, 3, tool.calls)

	requests := client.Requests()
	require.Len(t, requests, 4)
	assert.Empty(t, requests[3].Tools, "last request must not offer tools")
	last := requests[3].Messages[len(requests[3].Messages)-1]
	assert.Equal(t, toolBudgetExhaustNote, last.Content)
}

func TestRunToolLoopReturnsDirectAnswer(t *testing.T) {
	client := NewMockClient("test").Then("answer")
	conv := NewConversation("", "question", ConversationOptions{CountTokens: wordCount})

	resp, err := RunToolLoop(context.Background(), client, conv, CompletionRequest{}, []Tool{&echoTool{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, 0, conv.Round())
}

func TestRunToolLoopReportsUnknownTool(t *testing.T) {
	client := NewMockClient("test").
		ThenResponse(&CompletionResponse{ToolCalls: []ToolCall{{ID: "1", Name: "missing"}}}).
		Then("done")
	conv := NewConversation("", "question", ConversationOptions{CountTokens: wordCount})

	_, err := RunToolLoop(context.Background(), client, conv, CompletionRequest{}, []Tool{&echoTool{}}, nil)
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleTool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "unknown tool")
}

func TestConversationDropsOldestToolGroups(t *testing.T) {
	conv := NewConversation("system prompt", "user question", ConversationOptions{
		MaxRounds:   10,
		TokenBudget: 20,
		CountTokens: wordCount,
	})
	for i := 0; i < 4; i++ {
		conv.RecordToolRound(
			Message{Role: RoleAssistant, Content: "calling"},
			[]Message{{Role: RoleTool, Content: "one two three four five"}},
		)
	}

	msgs := conv.Messages()
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "user question", msgs[1].Content)
	assert.LessOrEqual(t, conv.Tokens(), 20)
	assert.Equal(t, 4, conv.Round())
	// Pinned pair plus exactly the surviving groups.
	assert.Equal(t, 0, (len(msgs)-2)%2)
}

func TestConversationKeepsLatestGroupEvenWhenLarge(t *testing.T) {
	conv := NewConversation("", "q", ConversationOptions{TokenBudget: 5, CountTokens: wordCount})
	conv.RecordToolRound(
		Message{Role: RoleAssistant, Content: "calling"},
		[]Message{{Role: RoleTool, Content: strings.Repeat("word ", 500)}},
	)
	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Less(t, len(msgs[2].Content), len(strings.Repeat("word ", 500)))
}
