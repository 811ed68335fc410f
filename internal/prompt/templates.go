package prompt

import "strings"

// Placeholders substituted into templates at generation time.
const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

const qaTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
Answer the question as you are a helpful chatbot assistant for %WEBSITE%.
Keep the answer as concise as possible while being informative.
Always say "thanks for asking!" at the end of the answer.

Context:
{context}

Question: {question}

Helpful Answer:`

const openaiSystemPrompt = `You are a helpful AI assistant representing %WEBSITE%.
Your role is to provide accurate, helpful, and concise answers based on the provided context.
Always be polite, professional, and end your responses with "thanks for asking!"
If you don't know something, admit it rather than making up information.`

const geminiSystemPrompt = `You are an intelligent AI assistant for %WEBSITE%.
Use the provided context to answer questions accurately and helpfully.
Be concise but informative in your responses.
Always maintain a friendly, professional tone and end with "thanks for asking!"
If the answer isn't in the context, politely say you don't know.`

// QATemplate returns the QA prompt template with the website persona
// filled in. {context} and {question} remain for the generator to fill.
func QATemplate(websiteName string) string {
	if websiteName == "" {
		websiteName = "this website"
	}
	return strings.ReplaceAll(qaTemplate, "%WEBSITE%", websiteName)
}

// ChatTemplate returns a provider-tuned template. Unknown providers fall
// back to the OpenAI-style system prompt.
func ChatTemplate(provider, websiteName string) string {
	if websiteName == "" {
		websiteName = "this website"
	}
	var system string
	switch provider {
	case "gemini":
		system = geminiSystemPrompt
	default:
		system = openaiSystemPrompt
	}
	system = strings.ReplaceAll(system, "%WEBSITE%", websiteName)

	return system + "\n\nContext from website:\n{context}\n\nUser Question: {question}\n\nAssistant Response:"
}

// Render substitutes the context and question into a template. Templates
// missing the placeholders get them appended so no input is ever dropped.
func Render(template, contextText, question string) string {
	out := template
	if strings.Contains(out, ContextPlaceholder) {
		out = strings.ReplaceAll(out, ContextPlaceholder, contextText)
	} else {
		out += "\n\nContext:\n" + contextText
	}
	if strings.Contains(out, QuestionPlaceholder) {
		out = strings.ReplaceAll(out, QuestionPlaceholder, question)
	} else {
		out += "\n\nQuestion: " + question
	}
	return out
}
