package llmresilience

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultGroup is the group used when a batch is not partitioned.
const DefaultGroup = "default"

// TargetGroup is a named partition of request volume, e.g. one cloud account
// or one consumer identity.
type TargetGroup struct {
	Name        string
	Requests    int
	Concurrency int // 0 = every request in flight at once

	// Template supplies payload parameters for every request of the group.
	Template RequestDescriptor
	Prompts  []string
}

// NewRequests builds n descriptors from tmpl, cycling through prompts.
// Sequence numbers start at 1.
func NewRequests(n int, tmpl RequestDescriptor, prompts []string) []RequestDescriptor {
	if tmpl.Group == "" {
		tmpl.Group = DefaultGroup
	}
	reqs := make([]RequestDescriptor, n)
	for i := range reqs {
		reqs[i] = describe(tmpl, i+1, pick(prompts, i, tmpl.Prompt))
	}
	return reqs
}

// PlanGroups builds the descriptors for the given groups. Sequence numbers are
// unique across the whole plan and follow group order.
func PlanGroups(groups []TargetGroup) ([]RequestDescriptor, error) {
	if len(groups) == 0 {
		return nil, ErrNoRequests
	}

	seen := make(map[string]bool, len(groups))
	total := 0
	for i, g := range groups {
		if g.Name == "" {
			return nil, fmt.Errorf("%w: groups[%d]: name is required", ErrInvalidGroup, i)
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("%w: duplicate group %q", ErrInvalidGroup, g.Name)
		}
		seen[g.Name] = true
		if g.Requests < 0 {
			return nil, fmt.Errorf("%w: group %q: negative request count", ErrInvalidGroup, g.Name)
		}
		if g.Concurrency < 0 {
			return nil, fmt.Errorf("%w: group %q: negative concurrency", ErrInvalidGroup, g.Name)
		}
		total += g.Requests
	}
	if total == 0 {
		return nil, ErrNoRequests
	}

	reqs := make([]RequestDescriptor, 0, total)
	seq := 0
	for _, g := range groups {
		tmpl := g.Template
		tmpl.Group = g.Name
		for i := 0; i < g.Requests; i++ {
			seq++
			reqs = append(reqs, describe(tmpl, seq, pick(g.Prompts, i, tmpl.Prompt)))
		}
	}
	return reqs, nil
}

func describe(tmpl RequestDescriptor, seq int, prompt string) RequestDescriptor {
	d := tmpl
	d.ID = uuid.New().String()
	d.Seq = seq
	d.Prompt = prompt
	return d
}

func pick(prompts []string, i int, fallback string) string {
	if len(prompts) == 0 {
		return fallback
	}
	return prompts[i%len(prompts)]
}
