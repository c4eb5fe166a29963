package companion

import (
	"errors"

	"github.com/Protocol-Lattice/go-companion/src/selector"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptyReply   = errors.New("reply model returned an empty response")
	ErrPersist      = errors.New("conversation could not be saved")
)

const (
	msgHistoryTooLarge = "This conversation has grown too long for me to choose an expert. Send /reset to start a fresh one."
	msgUnknownPersona  = "I couldn't decide which expert should answer that. Please try again."
	msgGenericFailure  = "Sorry, something went wrong while preparing a reply. Please try again."
)

// failureMessage is the assistant text recorded for a failed turn.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, selector.ErrHistoryTooLarge):
		return msgHistoryTooLarge
	case errors.Is(err, selector.ErrUnknownPersona):
		return msgUnknownPersona
	default:
		return msgGenericFailure
	}
}
