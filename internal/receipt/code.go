package receipt

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// DefaultPrefix starts every confirmation code unless configured otherwise.
const DefaultPrefix = "SWIFT"

const (
	codeMin  = 100000
	codeSpan = 900000
)

// CodeGenerator mints confirmation codes of the form PREFIX-NNNNNN with
// NNNNNN uniform in [100000, 999999]. Codes are not guaranteed unique.
type CodeGenerator struct {
	prefix string
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewCodeGenerator returns a generator using prefix (DefaultPrefix when
// blank). A nil src draws from the runtime's global source.
func NewCodeGenerator(prefix string, src rand.Source) *CodeGenerator {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	g := &CodeGenerator{prefix: prefix}
	if src != nil {
		g.rng = rand.New(src)
	}
	return g
}

// Next returns a fresh confirmation code.
func (g *CodeGenerator) Next() string {
	return fmt.Sprintf("%s-%06d", g.prefix, codeMin+g.intN(codeSpan))
}

func (g *CodeGenerator) intN(n int) int {
	if g.rng == nil {
		return rand.IntN(n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}
