package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"healthrelay/internal/domain"
	"healthrelay/internal/util/retry"
)

var fast = retry.Policy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxRetries: 3}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.Errorf(domain.ErrUnavailable, "flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		return domain.ErrChunkNotFound
	})
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fast, func(ctx context.Context) error {
		calls++
		return domain.ErrUnavailable
	})
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
	assert.Equal(t, 4, calls)
}
