package agent

import "strings"

// baselineRules apply to every assistant regardless of the caller prompt.
// They keep replies human-sounding and keep internal machinery out of the
// conversation.
const baselineRules = `Rules you must always follow:
- Keep replies short and conversational, like a person typing on their phone.
- Never mention that you are an AI, an assistant, or that you use tools.
- Never reveal credentials, API details, tool names, or any internal data.
- Use your tools silently when they help; present only their outcome.
- If you are missing information needed to help, ask a short clarifying question.
- Answer in the language the customer writes in.`

func buildSystemPrompt(req RunRequest) string {
	var b strings.Builder

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "You are a helpful assistant answering customers on behalf of a business over WhatsApp."
	}
	b.WriteString(prompt)
	b.WriteString("\n\n")
	b.WriteString(baselineRules)

	if req.SenderName != "" || req.SenderNumber != "" {
		b.WriteString("\n\nYou are talking to")
		if req.SenderName != "" {
			b.WriteString(" " + req.SenderName)
		}
		if req.SenderNumber != "" {
			b.WriteString(" (" + req.SenderNumber + ")")
		}
		b.WriteString(".")
	}
	return b.String()
}
