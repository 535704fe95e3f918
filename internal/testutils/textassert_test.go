package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextAsserter(t *testing.T) {
	t.Run("surrounding whitespace is trimmed by default", func(t *testing.T) {
		rec := &recordingT{}
		NewTextAsserter(rec).Assert("\nline one\nline two\n", "line one\nline two")
		assert.Empty(t, rec.errors)
	})

	t.Run("difference produces a unified diff", func(t *testing.T) {
		rec := &recordingT{}
		NewTextAsserter(rec).Assert("a\nb\nc", "a\nx\nc")
		require.Len(t, rec.errors, 1)
		assert.Contains(t, rec.errors[0], "-x")
		assert.Contains(t, rec.errors[0], "+b")
	})

	t.Run("trailing whitespace and empty lines", func(t *testing.T) {
		rec := &recordingT{}
		NewTextAsserter(rec).
			WithOptions(WithIgnoreTrailingWhitespace(true), WithIgnoreEmptyLines(true)).
			Assert("a  \n\nb\t", "a\nb")
		assert.Empty(t, rec.errors)
	})
}
