package engine

import (
	"math/rand/v2"
	"sync"

	"github.com/roach88/txsim/internal/ir"
)

// MaxAmount is the exclusive upper bound of generated amounts.
const MaxAmount = 1_000_000

// itemGenerator produces random work items: amount uniform in
// [0, MaxAmount), priority uniform in (0, 1).
type itemGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
	ids IDGenerator
}

func newItemGenerator(ids IDGenerator, seed *uint64) *itemGenerator {
	var src rand.Source
	if seed != nil {
		src = rand.NewPCG(*seed, *seed)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &itemGenerator{rng: rand.New(src), ids: ids}
}

// next builds one item. A priority of exactly zero is re-sampled.
func (g *itemGenerator) next() (ir.WorkItem, error) {
	g.mu.Lock()
	amount := g.rng.Float64() * MaxAmount
	priority := g.rng.Float64()
	for priority == 0 {
		priority = g.rng.Float64()
	}
	g.mu.Unlock()

	return ir.NewWorkItem(g.ids.Generate(), amount, priority)
}

// batch builds n items.
func (g *itemGenerator) batch(n int) ([]ir.WorkItem, error) {
	items := make([]ir.WorkItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := g.next()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
