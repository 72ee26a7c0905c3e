package registry

import (
	"errors"
	"testing"

	"rupiya_directory/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry[int]()

	isNew, err := r.Register("shops", 1)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = r.Register("shops", 2)
	require.NoError(t, err)
	assert.False(t, isNew, "ghi đè phải trả isNew = false")

	v, ok := r.Get("shops")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, err = r.Register("", 3)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestRegistry_MustGetAndClear(t *testing.T) {
	r := NewRegistry[string]()
	_, _ = r.Register("b", "x")
	_, _ = r.Register("a", "y")
	assert.Equal(t, []string{"a", "b"}, r.Names())

	_, err := r.MustGet("missing")
	assert.True(t, common.IsNotFound(err))

	cleaned := ""
	deleted, err := r.Clear("a", func(s string) error { cleaned = s; return nil })
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "y", cleaned)

	deleted, err = r.Clear("a", nil)
	require.NoError(t, err)
	assert.False(t, deleted)
}
