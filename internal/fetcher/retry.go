package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/iWorld-y/paper_radar/internal/logger"
)

const maxBackoff = 30 * time.Second

// timeouts 单次尝试使用的超时预算
type timeouts struct {
	connect time.Duration
	read    time.Duration
}

// timeoutsFor 第 attempt 次（从 0 开始）尝试的超时，每次重试都放宽
func (f *Fetcher) timeoutsFor(attempt int) timeouts {
	n := time.Duration(attempt)
	return timeouts{
		connect: f.opts.ConnectTimeout + n*f.opts.ConnectStep,
		read:    f.opts.ReadTimeout + n*f.opts.ReadStep,
	}
}

// backoff 第 failures 次失败后的等待时间，线性增长，上限 30 秒
func (f *Fetcher) backoff(failures int) time.Duration {
	d := time.Duration(failures) * f.opts.BackoffStep
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// withRetry 执行 op，遇到可重试错误时按退避计划重试，最多 MaxAttempts 次
func (f *Fetcher) withRetry(ctx context.Context, what string, op func(ctx context.Context, t timeouts) error) error {
	var lastErr error
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := f.backoff(attempt)
			logger.Log.Warnf("%s 第 %d 次失败（%s），%v 后重试 (%d/%d): %v",
				what, attempt, transientCause(lastErr), delay, attempt+1, f.opts.MaxAttempts, lastErr)
			if err := f.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := op(ctx, f.timeoutsFor(attempt))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %s 尝试 %d 次后仍失败（%s）: %w",
		ErrExhausted, what, f.opts.MaxAttempts, transientCause(lastErr), lastErr)
}

// sleepCtx 阻塞等待 d，ctx 取消时提前返回
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
