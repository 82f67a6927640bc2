package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorTagsPurposeAndTrims(t *testing.T) {
	mock := NewMockClient("m").Then("  solution text \n")
	gen := NewGenerator(mock, GeneratorOptions{MaxTokens: 4000, TopP: 1, CountTokens: wordCount})

	out, err := gen.Generate(context.Background(), Prompt{Purpose: PurposeSolver, System: "s", User: "u", Temperature: 0.4})
	require.NoError(t, err)
	assert.Equal(t, "solution text", out)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, PurposeSolver, reqs[0].Metadata[MetadataPurpose])
	assert.Equal(t, 4000, reqs[0].MaxTokens)
	assert.InDelta(t, 0.4, reqs[0].Temperature, 1e-9)
	assert.Empty(t, reqs[0].Tools)
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	mock := NewMockClient("m").Then("   ")
	gen := NewGenerator(mock, GeneratorOptions{CountTokens: wordCount})

	_, err := gen.Generate(context.Background(), Prompt{Purpose: PurposeEvaluator, User: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluator generation")
}

func TestGeneratorOffersToolsOnlyWhenAsked(t *testing.T) {
	mock := NewMockClient("m").Then("a").Then("b")
	gen := NewGenerator(mock, GeneratorOptions{Tools: []Tool{&echoTool{}}, CountTokens: wordCount})

	_, err := gen.Generate(context.Background(), Prompt{User: "u", UseTools: true})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), Prompt{User: "u"})
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Tools, 1)
	assert.Empty(t, reqs[1].Tools)
}

func TestOfflineMockAnswersEachPurpose(t *testing.T) {
	mock := NewMockClient("")
	for _, purpose := range []string{PurposeSolver, PurposeEvaluator, PurposeScriptWriter, PurposeSceneGenerator, PurposeSceneQA} {
		resp, err := mock.Complete(context.Background(), CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "Segment number: 2"}},
			Metadata: map[string]any{MetadataPurpose: purpose},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Content, purpose)
	}
	resp, _ := mock.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "Segment number: 2"}},
		Metadata: map[string]any{MetadataPurpose: PurposeSceneGenerator},
	})
	assert.Contains(t, resp.Content, "class Scene2(Scene)")
}
