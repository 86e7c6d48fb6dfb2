package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Running shoe with rubber outer sole, synthetic upper; made in Vietnam (6404.19.90).")
	assert.Equal(t, []string{"running", "shoe", "rubber", "outer", "sole", "synthetic", "upper", "vietnam"}, got)
}

func TestTokenize_Empty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("a an the of 1234"))
}

func TestUniqueTokens(t *testing.T) {
	assert.Equal(t, []string{"shoe", "sole"}, UniqueTokens("Shoe shoe SOLE shoe"))
}

func TestExtractKeywords(t *testing.T) {
	s := "leather wallet leather strap wallet leather buckle"
	assert.Equal(t, []string{"leather", "wallet", "strap", "buckle"}, ExtractKeywords(s, 20))
	assert.Equal(t, []string{"leather", "wallet"}, ExtractKeywords(s, 2))
	assert.Nil(t, ExtractKeywords(s, 0))
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("which"))
	assert.False(t, IsStopword("shoe"))
}
