package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(v string) func(context.Context, int) (string, error) {
	return func(context.Context, int) (string, error) { return v, nil }
}

func fail(err error, calls *int) func(context.Context, int) (string, error) {
	return func(context.Context, int) (string, error) {
		*calls++
		return "", err
	}
}

func TestPolicy_FirstSuccessWins(t *testing.T) {
	var direct int
	p := NewPolicy[int, string](nil,
		Strategy[int, string]{Name: "direct", Attempt: fail(errors.New("offline"), &direct)},
		Strategy[int, string]{Name: "helper", Attempt: ok("via helper")},
		Strategy[int, string]{Name: "never", Attempt: func(context.Context, int) (string, error) {
			t.Fatal("strategy after a success must not run")
			return "", nil
		}},
	)

	out, err := p.Execute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "via helper", out.Value)
	assert.Equal(t, "helper", out.Strategy)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 1, direct)
	assert.Equal(t, []string{"direct", "helper", "never"}, p.Strategies())
}

func TestPolicy_AllFail(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	var calls int
	p := NewPolicy[int, string](nil,
		Strategy[int, string]{Name: "a", Attempt: fail(first, &calls)},
		Strategy[int, string]{Name: "b", Attempt: fail(second, &calls)},
	)

	_, err := p.Execute(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, 2, calls)
}

func TestPolicy_TimeoutPerAttempt(t *testing.T) {
	p := NewPolicy[int, string](nil,
		Strategy[int, string]{Name: "slow", Timeout: 10 * time.Millisecond, Attempt: func(ctx context.Context, _ int) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}},
		Strategy[int, string]{Name: "fast", Attempt: ok("done")},
	)

	out, err := p.Execute(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "fast", out.Strategy)
}

func TestPolicy_PanicIsAFailure(t *testing.T) {
	p := NewPolicy[int, string](nil,
		Strategy[int, string]{Name: "boom", Attempt: func(context.Context, int) (string, error) { panic("bad") }},
		Strategy[int, string]{Name: "ok", Attempt: ok("fine")},
	)

	out, err := p.Execute(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "fine", out.Value)
}

func TestPolicy_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	p := NewPolicy[int, string](nil, Strategy[int, string]{Name: "a", Attempt: fail(errors.New("x"), &calls)})
	_, err := p.Execute(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
