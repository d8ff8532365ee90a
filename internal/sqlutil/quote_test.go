package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteIdentifier("users"))
	assert.Equal(t, `"user""data"`, QuoteIdentifier(`user"data`))
	assert.Equal(t, `"select"`, QuoteIdentifier("select"))
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, `"main"."users"`, QualifiedName("main", "users"))
	assert.Equal(t, `"users"`, QualifiedName("", "users"))
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, "'abc'", QuoteString("abc"))
	assert.Equal(t, "'it''s'", QuoteString("it's"))
}
