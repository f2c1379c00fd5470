package agent

import (
	"github.com/sendloop/sendloop/internal/providers"
	"github.com/sendloop/sendloop/internal/store"
)

// ProjectHistory converts stored chat messages into provider messages.
// Messages sent by selfID become assistant turns, everything else user
// turns. Non-text kinds collapse to short textual summaries; messages
// that summarize to nothing are dropped.
func ProjectHistory(msgs []store.Message, selfID string) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		content := summarize(m)
		if content == "" {
			continue
		}
		role := "user"
		if m.From == selfID {
			role = "assistant"
		}
		out = append(out, providers.Message{Role: role, Content: content})
	}
	return out
}

func summarize(m store.Message) string {
	switch m.Kind {
	case store.KindText:
		return m.Text
	case store.KindMedia:
		if m.Caption != "" {
			return "[media] " + m.Caption
		}
		return "[media]"
	case store.KindLocation:
		return "[location]"
	case store.KindSticker:
		return "[sticker]"
	case store.KindTemplate:
		if m.TemplateName == "" {
			return ""
		}
		return "Template message: " + m.TemplateName
	}
	return m.Text
}
