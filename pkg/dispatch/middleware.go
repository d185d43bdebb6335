package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"botkit/pkg/logx"
)

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Log.IsZero() {
						logger = req.Log
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if req != nil && !req.Log.IsZero() {
				logger = req.Log
			}
			err := next(ctx, req)
			if err != nil {
				logger.Warn("handler failed", logx.Duration("dur", time.Since(start)), logx.Err(err))
			} else {
				logger.Debug("handler done", logx.Duration("dur", time.Since(start)))
			}
			return err
		}
	}
}
