package async

import "context"

// Future 异步计算的结果，只会被写入一次。
type Future[T any] struct {
	result T
	err    error
	done   chan struct{}
}

// NewFuture 在新的 goroutine 中执行 fn。fn 中的 panic 以 *PanicError 的形式从 Get 返回。
func NewFuture[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if rec := recover(); rec != nil {
				f.err = newPanicError(rec)
			}
		}()
		f.result, f.err = fn(ctx)
	}()
	return f
}

// Get 等待结果；ctx 先结束时返回 ctx.Err()，计算本身不会被中断。
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done 计算结束时关闭。
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
