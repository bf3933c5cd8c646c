package scanner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// ErrUnknownSource is returned when a source name resolves to no collector.
var ErrUnknownSource = errors.New("unknown source")

// DefaultAliases maps shorthand names to canonical sources.
var DefaultAliases = map[string]domain.Source{
	"tt":      domain.SourceTikTok,
	"x":       domain.SourceX,
	"twitter": domain.SourceX,
}

// Registry keeps a mapping from source names to their collectors.
type Registry struct {
	collectors map[domain.Source]ports.Collector
	aliases    map[string]domain.Source
}

// NewRegistry builds an empty registry that understands DefaultAliases.
func NewRegistry() *Registry {
	aliases := make(map[string]domain.Source, len(DefaultAliases))
	for k, v := range DefaultAliases {
		aliases[k] = v
	}
	return &Registry{collectors: map[domain.Source]ports.Collector{}, aliases: aliases}
}

// Register adds or replaces a collector under its own name and any extra aliases.
func (r *Registry) Register(c ports.Collector, aliases ...string) {
	if r.collectors == nil {
		r.collectors = map[domain.Source]ports.Collector{}
	}
	if r.aliases == nil {
		r.aliases = map[string]domain.Source{}
	}
	r.collectors[c.Name()] = c
	for _, a := range aliases {
		r.aliases[strings.ToLower(strings.TrimSpace(a))] = c.Name()
	}
}

// Resolve returns a collector by name or alias.
func (r *Registry) Resolve(name string) (ports.Collector, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	src := domain.Source(key)
	if alias, ok := r.aliases[key]; ok {
		src = alias
	}
	if c, ok := r.collectors[src]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

// Names lists the registered canonical source names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.collectors))
	for src := range r.collectors {
		out = append(out, string(src))
	}
	sort.Strings(out)
	return out
}
