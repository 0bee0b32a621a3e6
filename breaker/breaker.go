// Package breaker 基于 gobreaker 的熔断器，保护行情源等外部依赖.
package breaker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/metrics"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// Breaker 未启用时为直通，零值不可用，使用 New 创建。
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// Option 熔断器构造选项。
type Option func(*settings)

type settings struct {
	metrics   *metrics.Metrics
	benign    func(error) bool
	onChanged func(name string, from, to gobreaker.State)
}

// WithMetrics 以 circuit_breaker_state{name} 暴露状态 (0 closed, 1 half-open, 2 open)。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithBenignErrors fn 返回 true 的错误不计入失败，例如行情源明确答复的 "无数据"。
func WithBenignErrors(fn func(error) bool) Option {
	return func(s *settings) { s.benign = fn }
}

// WithStateChange 状态切换时额外回调，测试中用于观察。
func WithStateChange(fn func(name string, from, to gobreaker.State)) Option {
	return func(s *settings) { s.onChanged = fn }
}

// New 按配置创建熔断器。失败率与最小样本数缺省为 0.5 与 5。
func New(name string, cfg config.BreakerConfig, opts ...Option) *Breaker {
	if !cfg.Enabled {
		return &Breaker{}
	}
	var st settings
	for _, opt := range opts {
		opt(&st)
	}

	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}

	var gauge *prometheus.GaugeVec
	if st.metrics != nil {
		gauge = st.metrics.CircuitBreakerState
	}

	gs := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return st.benign != nil && st.benign(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if gauge != nil {
				gauge.WithLabelValues(name).Set(float64(to))
			}
			if st.onChanged != nil {
				st.onChanged(name, from, to)
			}
		},
	}
	if gauge != nil {
		gauge.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gs)}
}

// State 当前状态，未启用时恒为 closed。
func (b *Breaker) State() gobreaker.State {
	if b == nil || b.cb == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}

// Execute 在熔断保护下调用 fn。熔断打开或半开探测名额用尽时返回 xerrors.ErrCircuitOpen。
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, xerrors.ErrCircuitOpen.WithContext("breaker", b.cb.Name())
	}
	if err != nil {
		// fn 的原始错误，benign 错误同样返回给调用方
		if v, ok := res.(T); ok {
			return v, err
		}
		var zero T
		return zero, err
	}
	return res.(T), nil
}
