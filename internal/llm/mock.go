package llm

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// MockClient implements Client without network access. Scripted responses
// are served first in order; once exhausted, Respond (or the built-in
// offline responder) answers.
type MockClient struct {
	model   string
	Respond func(req CompletionRequest) (*CompletionResponse, error)

	mu       sync.Mutex
	script   []mockStep
	requests []CompletionRequest
}

type mockStep struct {
	resp *CompletionResponse
	err  error
}

var _ Client = (*MockClient)(nil)

// NewMockClient returns a mock that answers every purpose with canned
// content good enough to drive the full pipeline offline.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock"
	}
	return &MockClient{model: model}
}

// Then queues a plain text response.
func (m *MockClient) Then(content string) *MockClient {
	return m.ThenResponse(&CompletionResponse{Content: content, StopReason: "stop"})
}

// ThenResponse queues a full response.
func (m *MockClient) ThenResponse(resp *CompletionResponse) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{resp: resp})
	return m
}

// ThenError queues a failure.
func (m *MockClient) ThenError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{err: err})
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

func (m *MockClient) Model() string { return m.model }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		if step.err != nil {
			return nil, step.err
		}
		return step.resp, nil
	}
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return offlineResponse(req), nil
}

var sceneHeaderPattern = regexp.MustCompile(`(?m)^Segment number:\s*(\d+)`)

func offlineResponse(req CompletionRequest) *CompletionResponse {
	purpose, _ := req.Metadata[MetadataPurpose].(string)
	var content string
	switch purpose {
	case PurposeSolver:
		content = "## Solution\n\nWe restate the problem, work through each step, and check the result.\n\n**Answer:** see the derivation above."
	case PurposeEvaluator:
		content = "OVERALL ASSESSMENT: correct\nCorrectness score: 9/10\nFINAL VERDICT: Yes, the solution is suitable for a video."
	case PurposeScriptWriter:
		content = "[SEGMENT 1]\nAUDIO: Let us look at the problem we want to solve today.\nVISUAL_CUE: Title card with the problem statement.\n\n" +
			"[SEGMENT 2]\nAUDIO: We work through the key step and arrive at the answer.\nVISUAL_CUE: Highlight the main equation."
	case PurposeSceneGenerator:
		number := "1"
		if match := sceneHeaderPattern.FindStringSubmatch(lastUserContent(req.Messages)); match != nil {
			number = match[1]
		}
		content = fmt.Sprintf("```python\nclass Scene%s(Scene):\n    def construct(self):\n        title = Text(\"Segment %s\")\n        self.play(Write(title), run_time=2.00)\n```", number, number)
	case PurposeSceneQA:
		content = "The animation matches the narration.\nOVERALL VERDICT: APPROVED"
	default:
		content = "This is a mock response. No API call was made."
	}
	return &CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage:      TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
