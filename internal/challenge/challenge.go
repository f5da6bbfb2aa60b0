// Package challenge generates the arithmetic problems that gate alarm dismissal.
package challenge

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

type Challenge struct {
	Question string
	Answer   int
}

const (
	DefaultMin = 2
	DefaultMax = 20

	maxRetries = 16
)

type template func(g *Generator) Challenge

var templates = []template{
	func(g *Generator) Challenge {
		a, b, c := g.operand(), g.operand(), g.operand()
		return Challenge{Question: fmt.Sprintf("%d × %d + %d", a, b, c), Answer: a*b + c}
	},
	func(g *Generator) Challenge {
		a, b := g.operand(), g.operand()
		c := g.operand()
		if c > a*b {
			c = a * b
		}
		return Challenge{Question: fmt.Sprintf("%d × %d − %d", a, b, c), Answer: a*b - c}
	},
	func(g *Generator) Challenge {
		a, b, c := g.operand(), g.operand(), g.operand()
		return Challenge{Question: fmt.Sprintf("(%d + %d) × %d", a, b, c), Answer: (a + b) * c}
	},
	func(g *Generator) Challenge {
		a, b := g.operand(), g.operand()
		return Challenge{Question: fmt.Sprintf("%d² + %d", a, b), Answer: a*a + b}
	},
}

// Generator is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	min, max int
}

// New returns a generator drawing operands from [min, max]. An invalid range
// falls back to the defaults.
func New(min, max int, src rand.Source) *Generator {
	if min < 1 || max < min {
		min, max = DefaultMin, DefaultMax
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src), min: min, max: max}
}

func (g *Generator) operand() int {
	return g.min + g.rng.IntN(g.max-g.min+1)
}

func (g *Generator) Generate() Challenge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return templates[g.rng.IntN(len(templates))](g)
}

// Next returns a challenge whose question text differs from prev.
func (g *Generator) Next(prev string) Challenge {
	g.mu.Lock()
	defer g.mu.Unlock()

	var c Challenge
	for i := 0; i < maxRetries; i++ {
		c = templates[g.rng.IntN(len(templates))](g)
		if c.Question != prev {
			return c
		}
	}
	// Every retry repeated prev; perturb the addend until the text changes.
	a := g.min
	for k := g.min + 1; ; k++ {
		c = Challenge{Question: fmt.Sprintf("%d × %d + %d", a, a, k), Answer: a*a + k}
		if c.Question != prev {
			return c
		}
	}
}
