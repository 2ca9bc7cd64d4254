package classifier

import (
	"fmt"
	"sort"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/llm"
)

func system(content string) llm.Message { return llm.Message{Role: llm.RoleSystem, Content: content} }
func user(content string) llm.Message   { return llm.Message{Role: llm.RoleUser, Content: content} }

const (
	traceSystem = "Your job is to determine if there is a traceability link between two artifacts of a system."

	traceQuestion = "Below are two artifacts from the same software system. Is there a traceability link between (1) and (2)? " +
		"Give your reasoning and then answer with 'yes' or 'no' enclosed in <trace> </trace>.\n" +
		" (1) {source_type}: '''{source_content}''' \n (2) {target_type}: '''{target_content}''' "
)

// multiStepPrompts are the prompt sets selectable with the prompt argument
// of the multi_step classifier.
var multiStepPrompts = map[string][]Step{
	"is_component_reasoning": {
		mustStep([]llm.Message{
			system("Your job is to determine if an artifact of a software system describes a component."),
			user("You are given a part of a {source_type}. Does it refer specifically to a component? " +
				"Give your reasoning and then answer with '<component>yes</component>' or '<component>no</component>'. \n" +
				" {source_type}: \n'''{source_content}'''"),
		}, ContainsTag("component", "yes", Continue, Unrelated)),
		mustStep([]llm.Message{
			system(traceSystem),
			user(traceQuestion),
		}, ContainsTag("trace", "yes", Related, Unrelated)),
	},
	"source_neighbouring_siblings_reasoning": {
		mustStep([]llm.Message{
			system(traceSystem),
			user(traceQuestion + "\n\n (1) is surrounded by this:\n {source_context_pre}\n{source_content}\n{source_context_post}"),
		}, ContainsTag("trace", "yes", Related, Unrelated)),
	},
}

// MultiStepPrompts returns the names of the built-in prompt sets.
func MultiStepPrompts() []string {
	out := make([]string, 0, len(multiStepPrompts))
	for n := range multiStepPrompts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func multiStepPrompt(name string) ([]Step, error) {
	steps, ok := multiStepPrompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown multi_step prompt %q (available: %v)", config.ErrConfiguration, name, MultiStepPrompts())
	}
	return steps, nil
}

// simplePrompt asks for a plain yes or no.
func simplePrompt() []Step {
	return []Step{mustStep([]llm.Message{
		user("Question: Here are two parts of software development artifacts. \n\n" +
			"        {source_type}: '''{source_content}''' \n\n" +
			"        {target_type}: '''{target_content}'''\n" +
			"        Are they related? \n\n" +
			"        Answer with 'yes' or 'no'.\n"),
	}, ContainsText("yes", Related, Unrelated))}
}

// chainOfThoughtQuestions are the questions of the chain_of_thought
// classifier, selected by prompt_number.
var chainOfThoughtQuestions = []string{
	traceQuestion,
	"Below are two artifacts from the same software system. Is there a conceivable traceability link between (1) and (2)? " +
		"Give your reasoning and then answer with 'yes' or 'no' enclosed in <trace> </trace>.\n" +
		" (1) {source_type}: '''{source_content}''' \n (2) {target_type}: '''{target_content}''' ",
	"Below are two artifacts from the same software system.\n" +
		" Give one reason why (1) might be related to (2) enclosed in <related> </related>.\n" +
		" Give one reason why (1) might not be related to (2) enclosed in <unrelated> </unrelated>.\n" +
		" Then answer: Is there a conceivable traceability link between (1) and (2)? Answer with 'yes' or 'no' enclosed in <trace> </trace>.\n" +
		" (1) {source_type}: '''{source_content}''' \n (2) {target_type}: '''{target_content}''' ",
	"Below are two artifacts from the same software system.\n" +
		" Give one reason why (1) might not be related to (2) enclosed in <unrelated> </unrelated>.\n" +
		" Give one reason why (1) might be related to (2) enclosed in <related> </related>.\n" +
		" Then answer: Is there a conceivable traceability link between (1) and (2)? Answer with 'yes' or 'no' enclosed in <trace> </trace>.\n" +
		" (1) {source_type}: '''{source_content}''' \n (2) {target_type}: '''{target_content}''' ",
	"Below are two artifacts from the same software system.\n" +
		" Is there a traceability link between (1) and (2)? Give your reasoning and then answer with 'yes' or 'no' enclosed in <trace> </trace>. " +
		"Only answer yes if you are absolutely certain.\n" +
		" (1) {source_type}: '''{source_content}''' \n (2) {target_type}: '''{target_content}''' ",
}

func chainOfThoughtPrompt(number int, withSystem bool) ([]Step, error) {
	if number < 0 || number >= len(chainOfThoughtQuestions) {
		return nil, fmt.Errorf("%w: prompt_number must be between 0 and %d, got %d",
			config.ErrConfiguration, len(chainOfThoughtQuestions)-1, number)
	}
	var messages []llm.Message
	if withSystem {
		messages = append(messages, system(traceSystem))
	}
	messages = append(messages, user(chainOfThoughtQuestions[number]))
	return []Step{mustStep(messages, ContainsTag("trace", "yes", Related, Unrelated))}, nil
}
