package promotions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 66},
		{3, 3, 100},
		{1, 0, 0},
		{0, 0, 0},
		{7, 8, 87},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestNormalizeSteps(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5}, normalizeSteps([]int{5, 1, 2, 1, 5}))
	assert.Equal(t, []int{}, normalizeSteps(nil))

	steps := normalizeSteps([]int{3, 1})
	assert.True(t, containsStep(steps, 1))
	assert.False(t, containsStep(steps, 2))
}

func TestPromotionPatch_SportsbookBlankClears(t *testing.T) {
	name := "Acme"
	p := &Promotion{SportsbookName: &name}

	blank := "   "
	PromotionPatch{SportsbookName: &blank}.Apply(p)
	assert.Nil(t, p.SportsbookName)
	assert.Equal(t, "", p.Sportsbook())

	padded := "  Acme Sportsbook "
	PromotionPatch{SportsbookName: &padded}.Apply(p)
	assert.Equal(t, "Acme Sportsbook", p.Sportsbook())
}
