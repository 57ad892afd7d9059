package evaluate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nucleus-sweep/internal/models"
)

type TimeoutError struct {
	ImageID  string
	Duration time.Duration
}

func (te *TimeoutError) Error() string {
	return fmt.Sprintf("segmentation of %s timed out after %v", te.ImageID, te.Duration)
}

func (te *TimeoutError) Unwrap() error {
	return models.ErrTimeout
}

// withImageTimeout runs fn under a deadline. When the caller stops waiting, either
// on timeout or cancellation, fn keeps running in its goroutine and abandon is
// called once it returns. The bool result reports whether that happened.
func withImageTimeout[T any](ctx context.Context, timeout time.Duration, imageID string, fn func(context.Context) (T, error), abandon func()) (T, bool, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	var (
		mu        sync.Mutex
		finished  bool
		abandoned bool
	)
	done := make(chan result, 1)

	go func() {
		r := func() (r result) {
			defer func() {
				if p := recover(); p != nil {
					r = result{err: fmt.Errorf("segmentation of %s panicked: %v", imageID, p)}
				}
			}()
			value, err := fn(tctx)
			return result{value, err}
		}()

		mu.Lock()
		finished = true
		late := abandoned
		mu.Unlock()

		if late {
			if abandon != nil {
				abandon()
			}
			return
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.value, false, r.err
	case <-tctx.Done():
		mu.Lock()
		if finished {
			mu.Unlock()
			r := <-done
			return r.value, false, r.err
		}
		abandoned = true
		mu.Unlock()

		var zero T
		if err := ctx.Err(); err != nil {
			return zero, true, err
		}
		return zero, true, &TimeoutError{ImageID: imageID, Duration: timeout}
	}
}
