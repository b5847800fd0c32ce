package llm

import "errors"

// ErrEmptyResponse signals a completion reply with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")
