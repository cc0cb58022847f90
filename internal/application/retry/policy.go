// Package retry runs an ordered list of attempt strategies until one succeeds.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every strategy failed.
var ErrExhausted = errors.New("all strategies failed")

// Strategy is one way of performing an operation.
type Strategy[In, Out any] struct {
	Name string

	// Timeout bounds a single attempt; zero means the caller's context only.
	Timeout time.Duration

	Attempt func(ctx context.Context, in In) (Out, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Outcome reports which strategy succeeded.
type Outcome[Out any] struct {
	Value    Out
	Strategy string
	Attempts int
}

// Policy is a declarative fallback chain.
type Policy[In, Out any] struct {
	strategies []Strategy[In, Out]
	logger     Logger
}

// NewPolicy creates a policy trying strategies in the given order.
func NewPolicy[In, Out any](logger Logger, strategies ...Strategy[In, Out]) *Policy[In, Out] {
	return &Policy[In, Out]{strategies: strategies, logger: logger}
}

// Strategies returns the strategy names in order.
func (p *Policy[In, Out]) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name
	}
	return names
}

// Execute runs strategies in order and returns the first success.
// When all fail the error wraps ErrExhausted and every attempt's error.
func (p *Policy[In, Out]) Execute(ctx context.Context, in In) (Outcome[Out], error) {
	var errs []error
	for i, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		out, err := p.attempt(ctx, s, in)
		if err == nil {
			if i > 0 && p.logger != nil {
				p.logger.Info("Fallback strategy succeeded", "strategy", s.Name, "attempt", i+1)
			}
			return Outcome[Out]{Value: out, Strategy: s.Name, Attempts: i + 1}, nil
		}

		if p.logger != nil {
			p.logger.Error("Strategy failed", "strategy", s.Name, "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}

	return Outcome[Out]{Attempts: len(errs)}, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

func (p *Policy[In, Out]) attempt(ctx context.Context, s Strategy[In, Out], in In) (out Out, err error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return s.Attempt(ctx, in)
}
