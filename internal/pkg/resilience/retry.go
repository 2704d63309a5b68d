package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Policy 外部调用(内容库、桶存储、数据网关)的有界重试与单次超时
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// NonRetryable 命中其中任一错误立即返回，不再重试
	NonRetryable []error
	// RetryIf 非空时只重试其返回 true 的错误
	RetryIf func(err error) bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

func (p Policy) normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p Policy) retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	for _, target := range p.NonRetryable {
		if errors.Is(err, target) {
			return false
		}
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return true
}

// Do 在重试策略下执行 fn，每次尝试使用独立的超时 ctx
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalize()
	retry := retrypolicy.NewBuilder[T]().
		WithBackoff(p.BaseDelay, p.MaxDelay).
		WithMaxRetries(p.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ T, err error) bool {
			return p.retryable(err)
		}).
		Build()

	var lastErr error
	result, err := failsafe.With[T](retry).WithContext(ctx).Get(func() (T, error) {
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		res, err := fn(attemptCtx)
		lastErr = err
		return res, err
	})
	// 重试耗尽时返回最后一次的原始错误，而不是 ExceededError
	if err != nil && lastErr != nil && ctx.Err() == nil {
		return result, lastErr
	}
	return result, err
}

// Run 无返回值版本
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do[struct{}](ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
