package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures assertion failures instead of failing the test.
type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestJSONAsserter(t *testing.T) {
	t.Run("extra keys are ignored by default", func(t *testing.T) {
		rec := &recordingT{}
		NewJSONAsserter(rec).Assert(`{"id":"kitchen","quality":33,"battery":50}`, `{"id":"kitchen","quality":33}`)
		assert.Empty(t, rec.errors)
	})

	t.Run("presence placeholder accepts any value", func(t *testing.T) {
		rec := &recordingT{}
		NewJSONAsserter(rec).Assert(`{"id":"kitchen","epoch":1767225600}`, `{"id":"kitchen","epoch":"<<PRESENCE>>"}`)
		assert.Empty(t, rec.errors)
	})

	t.Run("mismatch is reported", func(t *testing.T) {
		rec := &recordingT{}
		NewJSONAsserter(rec).Assert(`{"id":"kitchen","quality":12}`, `{"id":"kitchen","quality":33}`)
		assert.Len(t, rec.errors, 1)
	})

	t.Run("extra keys fail when strict", func(t *testing.T) {
		rec := &recordingT{}
		NewJSONAsserter(rec).WithOptions(WithIgnoreExtraKeys(false)).
			Assert(`{"id":"kitchen","quality":33}`, `{"id":"kitchen"}`)
		assert.Len(t, rec.errors, 1)
	})

	t.Run("ignored fields", func(t *testing.T) {
		rec := &recordingT{}
		NewJSONAsserter(rec).WithOptions(WithIgnoreExtraKeys(false), WithIgnoredFields("event_id")).
			Assert(`{"id":"kitchen","event_id":"a"}`, `{"id":"kitchen","event_id":"b"}`)
		assert.Empty(t, rec.errors)
	})
}
