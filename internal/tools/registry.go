package tools

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// SelectionContext carries the run attributes eligibility is judged on.
type SelectionContext struct {
	Region       string `json:"region,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	Preferred    string `json:"preferred,omitempty"`
}

// Rejection records why a registered tool was not chosen.
type Rejection struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

// Selection is the outcome of choosing a tool for one invocation.
type Selection struct {
	Capability Capability  `json:"capability"`
	Tool       string      `json:"tool"`
	Reason     string      `json:"reason"`
	Rejected   []Rejection `json:"rejected,omitempty"`

	descriptor Descriptor
}

// Descriptor returns the chosen tool.
func (s Selection) Descriptor() Descriptor {
	return s.descriptor
}

// Registry holds the registered tools. It is safe for concurrent use and
// read-mostly: selection takes a read lock, Register and Replace a write lock.
type Registry struct {
	mu     sync.RWMutex
	tools  []Descriptor
	policy Policy
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy overrides the default SpecificityPolicy.
func WithPolicy(p Policy) Option {
	return func(r *Registry) { r.policy = p }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{policy: SpecificityPolicy{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds d. Names are unique across all capabilities.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(d.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
	}
	r.tools = append(r.tools, d)
	return nil
}

// Replace swaps the full tool set. Runs already holding a Selection keep
// the descriptor they were given.
func (r *Registry) Replace(ds []Descriptor) error {
	seen := make(map[string]bool, len(ds))
	next := make([]Descriptor, 0, len(ds))
	for _, d := range ds {
		if err := d.validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		seen[d.Name] = true
		next = append(next, d)
	}

	r.mu.Lock()
	r.tools = next
	r.mu.Unlock()
	return nil
}

// List returns the registered tools for capability, or all tools when
// capability is empty, in registration order.
func (r *Registry) List(capability Capability) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for _, d := range r.tools {
		if capability == "" || d.Capability == capability {
			infos = append(infos, d.Info())
		}
	}
	return infos
}

// Select picks one tool for capability. The same registry contents and
// context always yield the same tool.
func (r *Registry) Select(capability Capability, sc SelectionContext) (Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type candidate struct {
		d      Descriptor
		order  int
		score  int
		detail string
	}

	var (
		candidates []candidate
		rejected   []Rejection
	)

	for i, d := range r.tools {
		if d.Capability != capability {
			continue
		}
		if reason := ineligible(d, sc); reason != "" {
			rejected = append(rejected, Rejection{Tool: d.Name, Reason: reason})
			continue
		}
		score, detail := r.policy.Score(d, sc)
		candidates = append(candidates, candidate{d: d, order: i, score: score, detail: detail})
	}

	if len(candidates) == 0 {
		return Selection{Capability: capability, Rejected: rejected},
			fmt.Errorf("%w: capability %s (%d rejected)", ErrNoEligibleTool, capability, len(rejected))
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.d.Priority, b.d.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})

	chosen := 0
	reason := ""
	if sc.Preferred != "" {
		if idx := slices.IndexFunc(candidates, func(c candidate) bool { return c.d.Name == sc.Preferred }); idx >= 0 {
			chosen = idx
			reason = "preferred"
		} else {
			reason = fmt.Sprintf("preferred tool %s not eligible; ", sc.Preferred)
		}
	}

	winner := candidates[chosen]
	if reason != "preferred" {
		reason += fmt.Sprintf("score=%d (%s) priority=%d order=%d", winner.score, winner.detail, winner.d.Priority, winner.order)
	}

	for i, c := range candidates {
		if i == chosen {
			continue
		}
		rejected = append(rejected, Rejection{
			Tool:   c.d.Name,
			Reason: fmt.Sprintf("outranked: score=%d priority=%d", c.score, c.d.Priority),
		})
	}

	return Selection{
		Capability: capability,
		Tool:       winner.d.Name,
		Reason:     reason,
		Rejected:   rejected,
		descriptor: winner.d,
	}, nil
}

func (r *Registry) indexOf(name string) int {
	return slices.IndexFunc(r.tools, func(d Descriptor) bool { return d.Name == name })
}

func ineligible(d Descriptor, sc SelectionContext) string {
	if d.Health == Unhealthy {
		return "unhealthy"
	}
	if sc.Region != "" && len(d.Regions) > 0 && !containsFold(d.Regions, sc.Region) {
		return fmt.Sprintf("region %s not served", sc.Region)
	}
	if sc.DocumentType != "" && len(d.DocumentTypes) > 0 && !containsFold(d.DocumentTypes, sc.DocumentType) {
		return fmt.Sprintf("document type %s not supported", sc.DocumentType)
	}
	return ""
}

func containsFold(values []string, v string) bool {
	return slices.ContainsFunc(values, func(s string) bool { return strings.EqualFold(s, v) })
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
