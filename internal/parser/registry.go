package parser

import (
	"fmt"
	"log/slog"

	"github.com/Enriquefft/webhook-funnel/internal/message"
)

// Registry is an ordered, read-only list of parsers. It is built once at
// startup and safe for concurrent use afterwards.
type Registry struct {
	parsers []Parser
	byName  map[string]Parser
}

// NewRegistry builds a registry that tries parsers in the given order.
// It panics on a duplicate parser name; registration happens once at startup
// and a duplicate is a programming error.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{
		parsers: make([]Parser, 0, len(parsers)),
		byName:  make(map[string]Parser, len(parsers)),
	}
	for _, p := range parsers {
		if _, exists := r.byName[p.Name()]; exists {
			panic(fmt.Sprintf("parser: duplicate parser registered for name %q", p.Name()))
		}
		r.parsers = append(r.parsers, p)
		r.byName[p.Name()] = p
	}
	return r
}

// Default returns the registry used by the service.
func Default(logger *slog.Logger) *Registry {
	return NewRegistry(NewGitLab(logger))
}

// DispatchAny runs the parsers in registration order and returns the messages
// of the first applicable one. Later parsers are not consulted. It returns
// false when no parser matched.
func (r *Registry) DispatchAny(raw string) ([]message.Message, bool) {
	for _, p := range r.parsers {
		if out := p.TryParse(raw); out.Applicable {
			return out.Messages, true
		}
	}
	return nil, false
}

// DispatchNamed runs only the parser registered under name.
func (r *Registry) DispatchNamed(raw, name string) ([]message.Message, bool) {
	p, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	out := p.TryParse(raw)
	if !out.Applicable {
		return nil, false
	}
	return out.Messages, true
}

// Has reports whether a parser is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns parser names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
