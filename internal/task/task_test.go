package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_String(t *testing.T) {
	tests := []struct {
		priority Priority
		expected string
	}{
		{PriorityCritical, "critical"},
		{PriorityHigh, "high"},
		{PriorityNormal, "normal"},
		{PriorityLow, "low"},
		{Priority(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.priority.String())
		})
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input    string
		expected Priority
	}{
		{"critical", PriorityCritical},
		{"high", PriorityHigh},
		{"normal", PriorityNormal},
		{"low", PriorityLow},
		{"invalid", PriorityNormal},
		{"", PriorityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParsePriority(tt.input))
		})
	}
}

func TestNew(t *testing.T) {
	tsk := New("add", []interface{}{1, 2}, map[string]interface{}{"x": 1})

	assert.NotEmpty(t, tsk.ID)
	assert.Equal(t, "add", tsk.FuncName)
	assert.Equal(t, []interface{}{1, 2}, tsk.Args)
	assert.Equal(t, int(PriorityNormal), tsk.Priority)
	assert.Equal(t, StatusPending, tsk.Status)
	assert.Equal(t, 0, tsk.RetryCount)
	assert.Equal(t, 3, tsk.MaxRetries)
	assert.False(t, tsk.CreatedAt.IsZero())
}

func TestNew_NilArgsKwargs(t *testing.T) {
	tsk := New("noop", nil, nil)
	assert.NotNil(t, tsk.Args)
	assert.NotNil(t, tsk.Kwargs)
}

func TestFromRequest(t *testing.T) {
	timeout := 30
	req := &CreateTaskRequest{
		FuncName:   "email",
		Args:       []interface{}{"user@example.com"},
		Priority:   int(PriorityHigh),
		MaxRetries: 5,
		Timeout:    &timeout,
		DependsOn:  []string{"other-task"},
	}

	tsk := FromRequest(req)

	assert.NotEmpty(t, tsk.ID)
	assert.Equal(t, "email", tsk.FuncName)
	assert.Equal(t, int(PriorityHigh), tsk.Priority)
	assert.Equal(t, 5, tsk.MaxRetries)
	require.NotNil(t, tsk.Timeout)
	assert.Equal(t, 30, *tsk.Timeout)
	assert.Equal(t, []string{"other-task"}, tsk.DependsOn)
}

func TestFromRequest_Defaults(t *testing.T) {
	req := &CreateTaskRequest{FuncName: "simple"}

	tsk := FromRequest(req)

	assert.Equal(t, 0, tsk.Priority) // zero-value request priority, accepted as-is
	assert.Equal(t, 3, tsk.MaxRetries)
	assert.Nil(t, tsk.Timeout)
}

func TestTask_ToSnapshot(t *testing.T) {
	tsk := New("test", nil, nil)
	tsk.MarkRunning()
	tsk.MarkCompleted(map[string]interface{}{"ok": true})

	snap := tsk.ToSnapshot()

	assert.Equal(t, tsk.ID, snap.TaskID)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.NotNil(t, snap.StartedAt)
	assert.NotNil(t, snap.CompletedAt)
	assert.Equal(t, map[string]interface{}{"ok": true}, snap.Result)
}

func TestTask_ToJSON_FromJSON(t *testing.T) {
	original := New("test", []interface{}{1}, map[string]interface{}{"k": "v"})

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.FuncName, restored.FuncName)
	assert.Equal(t, original.Priority, restored.Priority)
	assert.Equal(t, original.Status, restored.Status)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestTask_CanRetry(t *testing.T) {
	tsk := New("test", nil, nil)
	tsk.MaxRetries = 3

	tsk.RetryCount = 0
	assert.True(t, tsk.CanRetry())

	tsk.RetryCount = 2
	assert.True(t, tsk.CanRetry())

	tsk.RetryCount = 3
	assert.False(t, tsk.CanRetry())

	tsk.RetryCount = 5
	assert.False(t, tsk.CanRetry())
}

func TestTask_MarkRetrying_IncrementsSeparately(t *testing.T) {
	tsk := New("test", nil, nil)
	tsk.RetryCount++
	tsk.MarkRetrying("boom")

	assert.Equal(t, 1, tsk.RetryCount)
	assert.Equal(t, StatusRetrying, tsk.Status)
	assert.Equal(t, "boom", tsk.Error)
}

func TestTask_Clone_Independent(t *testing.T) {
	tsk := New("test", []interface{}{1}, map[string]interface{}{"k": "v"})
	clone := tsk.Clone()

	clone.Args[0] = 2
	clone.Kwargs["k"] = "changed"

	assert.Equal(t, 1, tsk.Args[0])
	assert.Equal(t, "v", tsk.Kwargs["k"])
}

func TestTask_EventTimestamp(t *testing.T) {
	tsk := New("test", nil, nil)
	assert.Equal(t, tsk.CreatedAt, tsk.EventTimestamp())

	tsk.MarkCompleted(nil)
	assert.Equal(t, *tsk.CompletedAt, tsk.EventTimestamp())
}
