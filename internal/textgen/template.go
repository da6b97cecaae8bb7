package textgen

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
)

var reasons = []string{
	"A bulk order from a corporate customer was recorded as a single sale.",
	"A promotional campaign drove an unusual spike in demand on this date.",
	"The amount may include a data entry error such as an extra zero.",
	"A seasonal clearance event moved unusually high value inventory.",
	"A wholesale partner restocked several stores in one transaction.",
	"The record may aggregate several days of sales after a system outage.",
	"A high-end variant of the product was sold under the same product id.",
	"Currency conversion was applied twice when the sale was recorded.",
}

// TemplateGenerator is an offline stand-in for a language model. Like a
// text-generation pipeline it echoes the prompt and continues it, here with a
// randomly chosen plausible reason.
type TemplateGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewTemplateGenerator(rng *rand.Rand) *TemplateGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &TemplateGenerator{rng: rng}
}

func (g *TemplateGenerator) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	reason := reasons[g.rng.IntN(len(reasons))]
	g.mu.Unlock()

	return limitWords(prompt+" "+reason, maxLength), nil
}

// limitWords keeps at most n whitespace separated words of s.
func limitWords(s string, n int) string {
	words := strings.Fields(s)
	if n <= 0 || len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
