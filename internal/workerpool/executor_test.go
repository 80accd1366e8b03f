package workerpool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/task"
)

func TestExecutor_Execute_Success(t *testing.T) {
	reg := registry.New()
	reg.Register("add", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		a := kwargs["a"].(int)
		b := kwargs["b"].(int)
		return a + b, nil
	})

	exec := NewExecutor(reg, 2)
	tsk := task.New("add", nil, map[string]interface{}{"a": 5, "b": 3})

	result, err := exec.Execute(context.Background(), tsk)
	require.NoError(t, err)
	assert.Equal(t, 8, result)
}

func TestExecutor_Execute_NotFound(t *testing.T) {
	reg := registry.New()
	exec := NewExecutor(reg, 2)
	tsk := task.New("missing", nil, nil)

	_, err := exec.Execute(context.Background(), tsk)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "NotFound:"))
}

func TestExecutor_Execute_UserFailure(t *testing.T) {
	reg := registry.New()
	wantErr := errors.New("division by zero")
	reg.Register("fail", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, wantErr
	})

	exec := NewExecutor(reg, 2)
	tsk := task.New("fail", nil, nil)

	_, err := exec.Execute(context.Background(), tsk)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UserFailure:")
	assert.Contains(t, err.Error(), "division by zero")
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	reg := registry.New()
	reg.Register("sleep", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, nil
	})

	exec := NewExecutor(reg, 2)
	tsk := task.New("sleep", nil, nil)
	timeout := 0 // seconds, but we want sub-second in test
	tsk.Timeout = &timeout

	_, err := exec.Execute(context.Background(), tsk)
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "timeout")
}
