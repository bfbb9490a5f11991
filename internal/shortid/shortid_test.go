package shortid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code := Generate(7)
		assert.Len(t, code, 7)
		assert.True(t, Valid(code), code)
		seen[code] = true
	}
	// 62^7 codes; a collision in 1000 draws would point at a broken source
	assert.Len(t, seen, 1000)
}

func TestGenerate_Zero(t *testing.T) {
	assert.Equal(t, "", Generate(0))
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"abc123":                true,
		"my-link_2":             true,
		"":                      false,
		"has space":             false,
		"slash/":                false,
		"dot.":                  false,
		strings.Repeat("a", 64): true,
		strings.Repeat("a", 65): false,
		"été":                   false,
	}
	for code, want := range cases {
		assert.Equal(t, want, Valid(code), "Valid(%q)", code)
	}
}
