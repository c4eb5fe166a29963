package selector

import (
	"fmt"
	"strings"
)

const noExplanation = "No explanation provided."

// SwitchDecision is the parsed answer of the keep-or-switch classifier.
type SwitchDecision struct {
	Switch        bool
	Justification string
	// Anomalous is set when the decision token was neither TRUE nor FALSE.
	Anomalous bool
}

// ParseSwitchDecision reads classifier output. The first line, compared
// case-insensitively, must be TRUE or FALSE; the rest is the justification.
// Any other token means no switch, with the anomaly noted in the justification.
func ParseSwitchDecision(raw string) SwitchDecision {
	head, rest := splitFirstLine(raw)
	justification := rest
	if justification == "" {
		justification = noExplanation
	}

	switch strings.ToUpper(head) {
	case "TRUE":
		return SwitchDecision{Switch: true, Justification: justification}
	case "FALSE":
		return SwitchDecision{Switch: false, Justification: justification}
	default:
		return SwitchDecision{
			Switch:        false,
			Anomalous:     true,
			Justification: fmt.Sprintf("unparseable switch decision %q, keeping current persona: %s", head, justification),
		}
	}
}

// parseChoice splits chooser output into the persona name and its reasoning.
func parseChoice(raw string) (name, reasoning string) {
	head, rest := splitFirstLine(raw)
	name = strings.Trim(head, "\"'`* ")
	if rest == "" {
		rest = noExplanation
	}
	return name, rest
}

func splitFirstLine(raw string) (head, rest string) {
	raw = strings.TrimSpace(raw)
	head, rest, _ = strings.Cut(raw, "\n")
	return strings.TrimSpace(head), strings.TrimSpace(rest)
}
