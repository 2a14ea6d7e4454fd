package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	ok := Success(42)
	assert.True(t, ok.IsSuccess())
	assert.Equal(t, 42, ok.Value)

	nf := NotFound[int]("post not found")
	assert.False(t, nf.IsSuccess())
	assert.Equal(t, KindNotFound, nf.Kind)
	assert.Equal(t, "post not found", nf.Message)
	assert.Zero(t, nf.Value)

	assert.Equal(t, KindInvalid, Invalid[string]("bad").Kind)
	assert.Equal(t, KindConflict, Conflict[string]("dup").Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "success", KindSuccess.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "invalid", KindInvalid.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
