package common

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCheckLen(t *testing.T) {
	assert.NoError(t, CheckLen("title", strings.Repeat("я", MaxNameLen), MaxNameLen), "символы, а не байты")
	err := CheckLen("title", strings.Repeat("x", MaxNameLen+1), MaxNameLen)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestWithinMoneyLimit(t *testing.T) {
	assert.True(t, WithinMoneyLimit(decimal.RequireFromString("999999999999.99")))
	assert.True(t, WithinMoneyLimit(decimal.RequireFromString("-999999999999.99")))
	assert.False(t, WithinMoneyLimit(decimal.RequireFromString("1000000000000.00")))
}
