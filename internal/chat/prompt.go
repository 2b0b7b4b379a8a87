package chat

import (
	"fmt"
	"strings"

	"github.com/lumenchat/lumen/internal/session"
)

// titleInputMaxRunes bounds how much of the first message is sent to the
// model for title generation.
const titleInputMaxRunes = 500

// promptSuffix is the fixed instruction block appended to every turn prompt.
const promptSuffix = `As an expert programming assistant, please provide:
1. Clear explanation
2. Code examples if relevant
3. Best practices and recommendations
4. Common pitfalls to avoid
5. Any relevant additional context`

// BuildPrompt renders the model prompt for one turn: the prior conversation
// as a transcript, the new question, then the instruction block.
//
// window bounds how many trailing history messages enter the transcript;
// 0 means unbounded. An empty history renders an empty transcript section,
// the surrounding structure stays identical.
func BuildPrompt(history []session.Message, question string, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	lines := make([]string, len(history))
	for i, msg := range history {
		lines[i] = msg.Role + ": " + msg.Content
	}
	transcript := strings.Join(lines, "\n\n")

	return fmt.Sprintf("Previous conversation:\n%s\n\nCurrent question:\n%s\n\n%s",
		transcript, question, promptSuffix)
}

// TitlePrompt renders the prompt that asks the model for a short session
// title based on the opening message.
func TitlePrompt(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) > titleInputMaxRunes {
		firstMessage = string(runes[:titleInputMaxRunes]) + "..."
	}
	return "Generate a very short title (max 4 words) for a conversation starting with: " + firstMessage
}
