package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return args, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	r.Register("echo", echoHandler)

	fn, err := r.Get("echo")
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func TestRegistry_Get_NotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Register_Overwrite(t *testing.T) {
	r := New()
	r.Register("add", echoHandler)
	r.Register("add", echoHandler) // should overwrite, not panic

	fn, err := r.Get("add")
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func TestRegistry_List(t *testing.T) {
	r := New()
	r.Register("b", echoHandler)
	r.Register("a", echoHandler)

	assert.Equal(t, []string{"a", "b"}, r.List())
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	r.Register("add", echoHandler)

	assert.True(t, r.Unregister("add"))
	assert.False(t, r.Unregister("add"))

	_, err := r.Get("add")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := New()
	r.Register("add", echoHandler)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			_, _ = r.Get("add")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
