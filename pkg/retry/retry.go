package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts は初回を含む最大試行回数です。
	DefaultMaxAttempts = 3

	// バックオフのデフォルト設定
	InitialBackoffInterval = 500 * time.Millisecond
	MaxBackoffInterval     = 5 * time.Second
	DefaultMultiplier      = 2.0
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// Config はリトライ動作を設定するための構造体です。
type Config struct {
	// MaxAttempts は初回を含む試行回数の上限です。1 以下ならリトライしません。
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: InitialBackoffInterval,
		MaxInterval:     MaxBackoffInterval,
		Multiplier:      DefaultMultiplier,
	}
}

func (c Config) maxRetries() uint64 {
	if c.MaxAttempts <= 1 {
		return 0
	}
	return uint64(c.MaxAttempts - 1)
}

// newBackOffPolicy は Config から backoff.BackOff を構築します。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier >= 1 {
		b.Multiplier = cfg.Multiplier
	}
	// 試行回数のみで打ち切る
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, cfg.maxRetries()), ctx)
}

// Do は指数バックオフとカスタムエラー判定を使用して操作をリトライします。
// コンテキストのキャンセル/タイムアウトはリトライしません。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	var lastErr error
	attempts := 0
	permanent := false

	retryableOp := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetryFn(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		slog.Debug("一時的なエラーが発生、リトライします",
			"operation", operationName, "attempt", attempts, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(retryableOp, newBackOffPolicy(ctx, cfg), notify)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, err)
	}

	// backoff.Retry は PermanentError を展開して返すため、フラグで判別する
	if permanent {
		return fmt.Errorf("%sに失敗しました (試行 %d回): %w", operationName, attempts, err)
	}

	return fmt.Errorf("%sに失敗しました: 最大試行回数 (%d回) に到達。最終エラー: %w", operationName, attempts, lastErr)
}
