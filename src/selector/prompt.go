package selector

import (
	"fmt"

	"github.com/Protocol-Lattice/go-companion/src/persona"
)

func switchPrompt(lastMessage string, active persona.Persona) string {
	return fmt.Sprintf(`You decide whether a conversation should switch to a different expert persona.

CURRENT EXPERT: %s
USE THIS EXPERT FOR: %s

LAST USER MESSAGE:
%q

Answer on the first line with exactly TRUE if the expert should be switched or FALSE if the current expert should continue.
On the following lines explain why in plain language.`, active.Name, active.UsageGuidance, lastMessage)
}

func choosePrompt(history, catalog string) string {
	return fmt.Sprintf(`You select the best expert persona to continue a conversation.

CONVERSATION HISTORY:
%s

AVAILABLE EXPERTS:
%s

Return the exact name of the best expert on the first line and nothing else on that line.
On the following lines briefly explain the choice.`, history, catalog)
}
