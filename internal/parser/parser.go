// Package parser turns raw webhook payloads into chat messages.
//
// Each event source implements Parser. A Registry holds the parsers in a
// fixed priority order and returns the first applicable translation.
package parser

import "github.com/Enriquefft/webhook-funnel/internal/message"

// Outcome is the result of a single parser run. A parser either produces the
// complete list of messages for an event or reports that it does not apply;
// it never returns a partial list.
type Outcome struct {
	Applicable bool
	Messages   []message.Message
}

// NotApplicable reports that a parser cannot translate the payload.
func NotApplicable() Outcome {
	return Outcome{}
}

// Applicable wraps a complete, ordered message list.
func Applicable(msgs []message.Message) Outcome {
	return Outcome{Applicable: true, Messages: msgs}
}

// Parser translates payloads from one event source.
//
// TryParse receives arbitrary text that may not be JSON at all. It must
// return NotApplicable for anything it cannot fully translate and must not
// panic on malformed input.
type Parser interface {
	Name() string
	TryParse(raw string) Outcome
}
