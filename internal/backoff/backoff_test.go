package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/stream/internal/backoff"
)

var errTest = errors.New("test error")

func TestDelay(t *testing.T) {
	p := backoff.Policy{Initial: time.Second, Max: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(100))
	assert.Equal(t, time.Duration(0), backoff.Policy{}.Delay(3))
}

func TestRetry(t *testing.T) {
	testRetry := func(retries, failures, expectedCalls int, expectedErr error) func(*testing.T) {
		return func(t *testing.T) {
			p := backoff.Policy{Initial: time.Millisecond, Max: time.Millisecond, Retries: retries}
			var (
				calls    int
				notified []int
			)
			err := p.Retry(context.Background(), func() error {
				calls++
				if calls <= failures {
					return errTest
				}
				return nil
			}, func(retry int, err error) {
				assert.ErrorIs(t, err, errTest)
				notified = append(notified, retry)
			})
			assert.Equal(t, expectedErr, err)
			assert.Equal(t, expectedCalls, calls)
			assert.Len(t, notified, expectedCalls-1)
		}
	}
	t.Run("first call", testRetry(3, 0, 1, nil))
	t.Run("after retries", testRetry(3, 2, 3, nil))
	t.Run("exhausted", testRetry(2, 5, 3, errTest))
	t.Run("no retries", testRetry(0, 1, 1, errTest))
}

func TestRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := backoff.Policy{Initial: time.Hour, Max: time.Hour, Retries: 1}
	err := p.Retry(ctx, func() error { return errTest }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
