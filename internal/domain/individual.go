package domain

// Genotype is the raw integer encoding of one candidate, one value per locus.
type Genotype []int

// Clone returns an independent copy of g.
func (g Genotype) Clone() Genotype {
	if g == nil {
		return nil
	}
	out := make(Genotype, len(g))
	copy(out, g)
	return out
}

// Equal reports whether g and other hold the same values.
func (g Genotype) Equal(other Genotype) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if g[i] != other[i] {
			return false
		}
	}
	return true
}

// Individual pairs a genotype with its cached fitness. The cache is dropped
// whenever the genotype is replaced.
type Individual struct {
	genotype  Genotype
	fitness   float64
	evaluated bool
}

// NewIndividual wraps g in an unevaluated Individual. The Individual takes
// ownership of g.
func NewIndividual(g Genotype) *Individual {
	return &Individual{genotype: g}
}

// Genotype returns the individual's genotype. Callers must not modify it;
// use SetGenotype instead.
func (ind *Individual) Genotype() Genotype { return ind.genotype }

// SetGenotype replaces the genotype and invalidates the cached fitness.
func (ind *Individual) SetGenotype(g Genotype) {
	ind.genotype = g
	ind.fitness = 0
	ind.evaluated = false
}

// Fitness returns the cached fitness and whether it is present.
func (ind *Individual) Fitness() (float64, bool) { return ind.fitness, ind.evaluated }

// SetFitness caches f as the individual's fitness.
func (ind *Individual) SetFitness(f float64) {
	ind.fitness = f
	ind.evaluated = true
}

// Clone returns a deep copy, cached fitness included.
func (ind *Individual) Clone() *Individual {
	return &Individual{
		genotype:  ind.genotype.Clone(),
		fitness:   ind.fitness,
		evaluated: ind.evaluated,
	}
}

// Population is the ordered set of individuals of one generation.
type Population []*Individual

// Unevaluated returns the indices of individuals without a cached fitness.
func (p Population) Unevaluated() []int {
	var idx []int
	for i, ind := range p {
		if _, ok := ind.Fitness(); !ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// Best returns the index of the fittest evaluated individual, the first one
// on ties, or -1 if none is evaluated.
func (p Population) Best() int {
	best := -1
	bestFit := 0.0
	for i, ind := range p {
		f, ok := ind.Fitness()
		if !ok {
			continue
		}
		if best < 0 || f > bestFit {
			best, bestFit = i, f
		}
	}
	return best
}
