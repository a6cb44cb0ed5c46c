package application

import (
	"math/rand/v2"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// tournamentSelect draws k individuals uniformly with replacement and
// returns the index of the fittest. Ties keep the first drawn. Every
// individual in pop must be evaluated.
func tournamentSelect(rng *rand.Rand, pop domain.Population, k int) int {
	best := rng.IntN(len(pop))
	bestFit, _ := pop[best].Fitness()
	for range k - 1 {
		i := rng.IntN(len(pop))
		if f, _ := pop[i].Fitness(); f > bestFit {
			best, bestFit = i, f
		}
	}
	return best
}

// crossover performs single-point crossover with probability rate. The cut
// point c is drawn from [1, L-1] so each child takes loci [0,c) from one
// parent and [c,L) from the other. Without crossover, or when L < 2, the
// children are copies of the parents.
func crossover(rng *rand.Rand, a, b domain.Genotype, rate float64) (domain.Genotype, domain.Genotype) {
	c1, c2 := a.Clone(), b.Clone()
	if len(a) < 2 || rng.Float64() >= rate {
		return c1, c2
	}

	cut := 1 + rng.IntN(len(a)-1)
	for i := cut; i < len(a); i++ {
		c1[i], c2[i] = b[i], a[i]
	}
	return c1, c2
}

// mutate independently resamples each locus of g in place with
// probability rate. A resampled locus may land on its previous value.
func mutate(rng *rand.Rand, codec *domain.GenomeCodec, g domain.Genotype, rate float64) {
	for i := range g {
		if rng.Float64() < rate {
			codec.Resample(rng, g, i)
		}
	}
}
