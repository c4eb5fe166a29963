package companion

import (
	"strings"

	"github.com/Protocol-Lattice/go-companion/src/orchestrator"
	"github.com/Protocol-Lattice/go-companion/src/persona"
)

func buildReplyPrompt(p persona.Persona, aug orchestrator.Augmentation, history string) string {
	var sb strings.Builder
	sb.Grow(2048 + len(history))

	sb.WriteString(p.SystemPrompt())
	sb.WriteString("\n\nSpeak as a human would and continue this chat. Answer the latest user message.")

	sb.WriteString("\n\nPersonal data gathered for this message:\n")
	if data := aug.Serialize(); data != "" {
		sb.WriteString(data)
	} else {
		sb.WriteString("(none)")
	}

	sb.WriteString("\n\nConversation so far, oldest first:\n")
	sb.WriteString(history)
	sb.WriteString("\n\nCompose the assistant's next reply. Return only the reply text.\n")
	return sb.String()
}
