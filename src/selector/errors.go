package selector

import "errors"

var (
	// ErrUnknownPersona means the chooser named a persona the catalog does not hold.
	ErrUnknownPersona = errors.New("selector: chooser returned an unknown persona")
	// ErrHistoryTooLarge means the history exceeded the word guard; no model was called.
	ErrHistoryTooLarge = errors.New("selector: conversation history too large")
)
