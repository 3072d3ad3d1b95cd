package rag

import "strings"

const (
	// RefusalAnswer is what the model is told to answer when the context does not contain the answer.
	RefusalAnswer = "Not available in the document."
	// NoContentAnswer replaces an empty answer when nothing was retrieved.
	NoContentAnswer = "No relevant content found."
	// UnusableAnswer replaces an empty answer generated from retrieved context.
	UnusableAnswer = "Unable to generate answer from the context."
	// MetaPrefix starts the trailing metadata fragment of a stream.
	MetaPrefix = "[META]"
	// ErrorPrefix starts an in-band error fragment of a stream.
	ErrorPrefix = "⚠️ Error: "
)

// BuildPrompt frames the hit texts, in rank order, as context for question. Without hits the
// prompt is the bare question.
func BuildPrompt(question string, texts []string) string {
	if len(texts) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Use the following context from a PDF to answer the question.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer based only on the context provided. ")
	b.WriteString("If the answer is not present, respond '" + RefusalAnswer + "'")
	return b.String()
}

// fallbackAnswer returns answer, or the fixed replacement when it is blank.
func fallbackAnswer(answer string, hits int) string {
	if strings.TrimSpace(answer) != "" {
		return answer
	}
	if hits == 0 {
		return NoContentAnswer
	}
	return UnusableAnswer
}
