package evaluator

import (
	"embed"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var (
	systemInstructions string
	userTemplate       string
	fewShotExamples    string
	promptLoadError    error
)

func init() {
	// Load prompt text during package initialization
	systemInstructions, promptLoadError = readPrompt("prompts/system.txt")
	if promptLoadError != nil {
		return
	}
	userTemplate, promptLoadError = readPrompt("prompts/user.txt")
	if promptLoadError != nil {
		return
	}
	fewShotExamples, promptLoadError = readPrompt("prompts/examples.txt")
}

func readPrompt(name string) (string, error) {
	b, err := promptFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}

// FormatPrompt builds the system and user messages for one pair. The reference
// and candidate are inserted verbatim and never re-scanned for placeholders.
func FormatPrompt(reference, candidate string) (system, user string) {
	r := strings.NewReplacer(
		"{{examples}}", fewShotExamples,
		"{{reference}}", reference,
		"{{candidate}}", candidate,
	)
	return systemInstructions, r.Replace(userTemplate)
}

// BuildMessages returns the system and user messages for one pair in chat
// completion order.
func BuildMessages(reference, candidate string) []openai.ChatCompletionMessage {
	system, user := FormatPrompt(reference, candidate)
	return []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: user,
		},
	}
}
