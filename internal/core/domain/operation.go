package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOperationNotFound    = errors.New("operation not found")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// OperationSpec describes one named operation exposed to both strategies.
// Parameter names are informational; they are not type-checked.
type OperationSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
	Required    []string `json:"required,omitempty"`
	Mutating    bool     `json:"mutating"` // never retried on transport errors
	Local       bool     `json:"local"`    // answered by the dispatcher, never sent to a backend
}

// Catalog is the static registry of operations. It is populated at startup
// and only read afterwards, so lookups take no lock.
type Catalog struct {
	specs map[string]OperationSpec
	order []string
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		specs: make(map[string]OperationSpec),
	}
}

// Register adds an operation. Names must be unique.
func (c *Catalog) Register(spec OperationSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if _, exists := c.specs[spec.Name]; exists {
		return fmt.Errorf("operation %q already registered", spec.Name)
	}
	c.specs[spec.Name] = spec
	c.order = append(c.order, spec.Name)
	return nil
}

// Lookup returns the spec for name or ErrOperationNotFound.
func (c *Catalog) Lookup(name string) (OperationSpec, error) {
	spec, ok := c.specs[name]
	if !ok {
		return OperationSpec{}, fmt.Errorf("%w: %s", ErrOperationNotFound, name)
	}
	return spec, nil
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.specs[name]
	return ok
}

// List returns all operations in registration order.
func (c *Catalog) List() []OperationSpec {
	out := make([]OperationSpec, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.specs[name])
	}
	return out
}

// Names returns the registered names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Suggest finds the closest registered name for a wrong one, typically an
// operation name invented by the reasoning model. It uses word-overlap
// scoring with Levenshtein distance as tiebreaker and returns "" when no
// registered name shares a word with the input.
func (c *Catalog) Suggest(input string) string {
	inputWords := splitOperationWords(input)

	bestName := ""
	bestScore := 0

	// Walk in registration order so ties resolve deterministically.
	for _, name := range c.order {
		score := wordOverlapScore(inputWords, splitOperationWords(name))
		if score > bestScore {
			bestScore = score
			bestName = name
		} else if score == bestScore && score > 0 {
			if levenshtein(input, name) < levenshtein(input, bestName) {
				bestName = name
			}
		}
	}

	if bestScore >= 1 {
		return bestName
	}
	return ""
}

// FormatForPrompt renders the catalog compactly for an LLM prompt:
// name: description | params: {...} | required: ...
func (c *Catalog) FormatForPrompt() string {
	var sb strings.Builder
	sb.WriteString("Available Operations:\n")
	for _, name := range c.order {
		spec := c.specs[name]
		if spec.Local {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(spec.Name)
		if spec.Mutating {
			sb.WriteString(" [mutating]")
		}
		sb.WriteString(": ")
		sb.WriteString(spec.Description)
		if len(spec.Parameters) > 0 {
			sb.WriteString(" | params: {" + strings.Join(spec.Parameters, ", ") + "}")
		}
		if len(spec.Required) > 0 {
			sb.WriteString(" | required: " + strings.Join(spec.Required, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func splitOperationWords(name string) []string {
	parts := []string{}
	for _, p := range strings.Split(strings.ToLower(name), "_") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func wordOverlapScore(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[w] = true
	}
	score := 0
	for _, w := range a {
		if set[w] {
			score++
		}
	}
	return score
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
