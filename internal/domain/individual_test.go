package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndividual_FitnessCache(t *testing.T) {
	ind := NewIndividual(Genotype{1, 2, 3})

	_, ok := ind.Fitness()
	assert.False(t, ok, "new individual must be unevaluated")

	ind.SetFitness(0.75)
	f, ok := ind.Fitness()
	assert.True(t, ok)
	assert.Equal(t, 0.75, f)

	ind.SetGenotype(Genotype{3, 2, 1})
	_, ok = ind.Fitness()
	assert.False(t, ok, "replacing the genotype must drop the cached fitness")
}

func TestIndividual_Clone(t *testing.T) {
	ind := NewIndividual(Genotype{1, 2, 3})
	ind.SetFitness(0.5)

	clone := ind.Clone()
	clone.Genotype()[0] = 9

	assert.Equal(t, 1, ind.Genotype()[0], "clone must not share the genotype")
	f, ok := clone.Fitness()
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)
}

func TestPopulation_BestAndUnevaluated(t *testing.T) {
	a := NewIndividual(Genotype{0})
	b := NewIndividual(Genotype{1})
	c := NewIndividual(Genotype{2})
	d := NewIndividual(Genotype{3})
	b.SetFitness(0.9)
	c.SetFitness(0.9)
	d.SetFitness(0.1)

	pop := Population{a, b, c, d}
	assert.Equal(t, 1, pop.Best(), "ties resolve to the first index")
	assert.Equal(t, []int{0}, pop.Unevaluated())

	assert.Equal(t, -1, Population{NewIndividual(nil)}.Best())
}

func TestGenotype_CloneAndEqual(t *testing.T) {
	g := Genotype{4, 5, 6}
	c := g.Clone()
	assert.True(t, g.Equal(c))

	c[1] = 0
	assert.False(t, g.Equal(c))
	assert.False(t, g.Equal(Genotype{4, 5}))
	assert.Nil(t, Genotype(nil).Clone())
}
