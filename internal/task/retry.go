package task

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines the backoff behavior for failed tasks. The default
// policy reproduces the 2^(retry_count-1) second backoff: InitialBackoff=1s,
// BackoffFactor=2.0, retry 1 waits 1s, retry 2 waits 2s, retry 3 waits 4s.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterFactor   float64 // 0.0 disables jitter
}

// DefaultRetryPolicy returns the policy matching the core's backoff formula.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Minute,
		BackoffFactor:  2.0,
		JitterFactor:   0,
	}
}

// CalculateBackoff returns the delay before the given retry attempt
// (1-indexed: the delay preceding the first retry is CalculateBackoff(1)).
func (p *RetryPolicy) CalculateBackoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialBackoff
	}

	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(retryCount-1))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.JitterFactor > 0 {
		jitter := backoff * p.JitterFactor * (rand.Float64()*2 - 1)
		backoff += jitter
		if backoff < 0 {
			backoff = float64(p.InitialBackoff)
		}
	}

	return time.Duration(backoff)
}

// NextRetryTime calculates when a task should be retried, given its
// (already-incremented) RetryCount.
func (p *RetryPolicy) NextRetryTime(t *Task) time.Time {
	return time.Now().UTC().Add(p.CalculateBackoff(t.RetryCount))
}

// RetryInfo summarizes retry scheduling for a task.
type RetryInfo struct {
	ShouldRetry  bool
	NextRetryAt  time.Time
	BackoffDelay time.Duration
	AttemptsLeft int
}

// GetRetryInfo returns retry scheduling info without mutating the task.
func (p *RetryPolicy) GetRetryInfo(t *Task) *RetryInfo {
	shouldRetry := t.RetryCount < p.MaxRetries
	backoff := p.CalculateBackoff(t.RetryCount)
	return &RetryInfo{
		ShouldRetry:  shouldRetry,
		NextRetryAt:  time.Now().UTC().Add(backoff),
		BackoffDelay: backoff,
		AttemptsLeft: p.MaxRetries - t.RetryCount,
	}
}

// Retryer applies a RetryPolicy's failure handling to tasks.
type Retryer struct {
	policy *RetryPolicy
}

// NewRetryer creates a Retryer with the given policy, or the default if nil.
func NewRetryer(policy *RetryPolicy) *Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &Retryer{policy: policy}
}

// ProcessFailure implements the core failure handling: increment RetryCount
// first, then decide terminal failure vs retry based on the task's own
// MaxRetries (which may differ from the policy's MaxRetries when a caller
// submitted a custom max_retries). Returns the backoff to wait before the
// retried attempt; zero when the task is now terminally failed.
func (r *Retryer) ProcessFailure(t *Task, errMsg string) (shouldRetry bool, backoff time.Duration) {
	t.RetryCount++

	if t.RetryCount > t.MaxRetries {
		return false, 0
	}

	return true, r.policy.CalculateBackoff(t.RetryCount)
}
