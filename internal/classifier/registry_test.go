package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/cache"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/llm"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

func build(t *testing.T, name string, args map[string]any) (Classifier, error) {
	t.Helper()
	oracle := llm.NewMockTextGenerator(nil)
	return New(types.ModuleConfiguration{Type: types.ModuleClassifier, Name: name, Args: args}, Deps{Oracle: oracle})
}

func TestNew_Variants(t *testing.T) {
	cl, err := build(t, "simple", nil)
	require.NoError(t, err)
	ms := cl.(*MultiStep)
	require.Len(t, ms.opts.Steps, 1)
	assert.Equal(t, Related, ms.opts.Steps[0].Status("Yes, they are."))
	assert.Equal(t, Unrelated, ms.opts.Steps[0].Status("No."))

	cl, err = build(t, "chain_of_thought", map[string]any{"prompt_number": 4, "system_message": false})
	require.NoError(t, err)
	ms = cl.(*MultiStep)
	require.Len(t, ms.opts.Steps[0].Messages, 1)
	assert.Contains(t, ms.opts.Steps[0].Messages[0].Content, "absolutely certain")

	cl, err = build(t, "chain_of_thought", nil)
	require.NoError(t, err)
	assert.Len(t, cl.(*MultiStep).opts.Steps[0].Messages, 2, "system message by default")

	cl, err = build(t, "multi_step", map[string]any{
		"prompt": "is_component_reasoning", "use_original_artifacts": true,
		"source_pre_context": 1, "target_post_context": 2.0, "batch_size": 8,
	})
	require.NoError(t, err)
	ms = cl.(*MultiStep)
	assert.Len(t, ms.opts.Steps, 2)
	assert.Equal(t, Window{Pre: 1}, ms.opts.SourceContext)
	assert.Equal(t, Window{Post: 2}, ms.opts.TargetContext)
	assert.Equal(t, 8, ms.opts.BatchSize)
	assert.Equal(t, map[string]any{"model": "mock", "use_original_artifacts": true}, ms.CacheKey().Args)

	cl, err = build(t, "mock", nil)
	require.NoError(t, err)
	assert.IsType(t, Mock{}, cl)
}

func TestNew_ProviderFromArguments(t *testing.T) {
	cl, err := New(types.ModuleConfiguration{Name: "simple", Args: map[string]any{"provider": "ollama", "model": "llama3.1"}}, Deps{})
	require.NoError(t, err)
	ollama := cl.(*MultiStep).CacheKey()
	assert.Equal(t, "llama3.1", ollama.Args["model"])
	assert.Equal(t, "ollama", ollama.Args["provider"])

	cl, err = New(types.ModuleConfiguration{Name: "simple"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo-0125", cl.(*MultiStep).CacheKey().Args["model"])
	assert.Equal(t, llm.ProviderOpenAI, cl.(*MultiStep).CacheKey().Args["provider"])

	cl, err = New(types.ModuleConfiguration{Name: "simple", Args: map[string]any{"provider": "openai", "model": "llama3.1"}}, Deps{})
	require.NoError(t, err)
	openai := cl.(*MultiStep).CacheKey()
	ollamaHash, _, err := cache.ConfigHash(ollama.Args)
	require.NoError(t, err)
	openaiHash, _, err := cache.ConfigHash(openai.Args)
	require.NoError(t, err)
	assert.NotEqual(t, ollamaHash, openaiHash, "services with equal model names do not share answers")
}

func TestNew_ConfigurationErrors(t *testing.T) {
	_, err := build(t, "selection", nil)
	assert.ErrorIs(t, err, config.ErrNotSupported)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	for name, args := range map[string]map[string]any{
		"unknown":          nil,
		"multi_step":       {},
		"chain_of_thought": {"prompt_number": 5},
		"simple":           {"source_pre_context": -1},
	} {
		_, err := build(t, name, args)
		assert.ErrorIs(t, err, config.ErrConfiguration, name)
	}

	_, err = build(t, "multi_step", map[string]any{"prompt": "free_form"})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = build(t, "simple", map[string]any{"batch_size": 0})
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = New(types.ModuleConfiguration{Name: "simple", Args: map[string]any{"provider": "palm"}}, Deps{})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestStatusFunctions(t *testing.T) {
	trace := ContainsTag("trace", "yes", Related, Unrelated)
	assert.Equal(t, Related, trace("Because... <Trace> YES </Trace>"))
	assert.Equal(t, Unrelated, trace("<trace>no</trace> but yes elsewhere"))
	assert.Equal(t, Unrelated, trace("yes"), "a missing tag is negative")
	assert.Equal(t, Related, trace("<trace>yes</trace><trace>no</trace>"), "the first tag decides")

	component := ContainsTag("component", "yes", Continue, Unrelated)
	assert.Equal(t, Continue, component("<component>yes</component>"))

	yes := ContainsText("yes", Related, Unrelated)
	assert.Equal(t, Related, yes("YES"))
	assert.Equal(t, Unrelated, yes("nope"))

	assert.Equal(t, "continue", Continue.String())
}

func TestStep_PlaceholdersAndRender(t *testing.T) {
	_, err := NewStep([]llm.Message{user("{source_content} vs {target_body}")}, ContainsText("yes", Related, Unrelated))
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = NewStep(nil, ContainsText("yes", Related, Unrelated))
	assert.ErrorIs(t, err, config.ErrConfiguration)

	step, err := NewStep([]llm.Message{system("sys"), user("{source_type}: {source_content}")}, ContainsText("yes", Related, Unrelated))
	require.NoError(t, err)
	assert.True(t, step.Uses(SourceContent))
	assert.False(t, step.Uses(TargetContent))

	rendered := step.Render(map[string]string{SourceType: "requirement", SourceContent: "uses {target_content} literally"})
	assert.Equal(t, []llm.Message{system("sys"), user("requirement: uses {target_content} literally")}, rendered)
	assert.Equal(t, "{source_type}: {source_content}", step.Messages[1].Content, "the template is not modified")
}
