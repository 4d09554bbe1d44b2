package llm

import "strings"

// NotFoundAnswer is the reply the system prompt asks for when the context
// does not contain the answer.
const NotFoundAnswer = "I could not find the answer in the documents provided."

// SystemPrompt restricts answers to the supplied document context.
const SystemPrompt = "You are a helpful assistant. Use ONLY the context provided below to answer or summarize. " +
	"If the answer is not found in the document, respond with '" + NotFoundAnswer + "' " +
	"Never use external knowledge or make assumptions."

// contextPreamble introduces the retrieved passages.
const contextPreamble = "Here is some context from your document:\n\n"

// passageSeparator delimits passages in the assembled context.
const passageSeparator = "\n\n"

// AssembleContext joins passages in rank order. No truncation happens here.
func AssembleContext(passages []string) string {
	return strings.Join(passages, passageSeparator)
}

// BuildMessages lays out a grounded conversation: the system prompt, the
// context as a user turn, prior turns alternating user and assistant
// starting with the user, then the question.
func BuildMessages(context string, history []string, question string) []Message {
	messages := make([]Message, 0, len(history)+3)
	messages = append(messages,
		Message{Role: RoleSystem, Content: SystemPrompt},
		Message{Role: RoleUser, Content: contextPreamble + context},
	)

	for i, turn := range history {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: turn})
	}

	return append(messages, Message{Role: RoleUser, Content: question})
}
