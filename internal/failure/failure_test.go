package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsInnerKind(t *testing.T) {
	inner := New(KindUnparseableResponse, "parse", errors.New("stage 7 failed"))
	err := Wrap("g1", KindEditorUnavailable, "generate", fmt.Errorf("editor: %w", inner))

	assert.Equal(t, KindUnparseableResponse, KindOf(err))
	assert.True(t, Is(err, KindUnparseableResponse))
	assert.Contains(t, err.Error(), "group g1")
	assert.ErrorIs(t, err, inner)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindPublish))
	assert.Nil(t, Wrap("g1", KindPublish, "publish", nil))
}
