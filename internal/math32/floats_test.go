package math32

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	assert.InDelta(t, 32.0, Dot([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)
	assert.Zero(t, Dot([]float32{1, 0}, []float32{0, 1}))
	assert.Zero(t, Dot(nil, nil))
}

func TestSquaredL2(t *testing.T) {
	assert.InDelta(t, 25.0, SquaredL2([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.Zero(t, SquaredL2([]float32{1, 2}, []float32{1, 2}))
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5.0, Norm([]float32{3, 4}), 1e-6)
	assert.Zero(t, Norm([]float32{0, 0, 0}))
}

func TestScaleInPlace(t *testing.T) {
	v := []float32{1, -2, 3}
	ScaleInPlace(v, 2)
	assert.Equal(t, []float32{2, -4, 6}, v)
}

func TestAddInPlace(t *testing.T) {
	a := []float32{1, 2}
	AddInPlace(a, []float32{3, -1})
	assert.Equal(t, []float32{4, 1}, a)
}
