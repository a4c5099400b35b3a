// Package async provides safe goroutine helpers for fire-and-forget
// background work such as raw payload archival.
package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo runs fn in a goroutine with a timeout and panic recovery. A panic
// or returned error is logged with the task name; the caller is never
// crashed by background work.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[async] panic in %s: %v\n%s", taskName, r, debug.Stack())
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("[async] %s failed: %v", taskName, err)
		}
	}()
}
