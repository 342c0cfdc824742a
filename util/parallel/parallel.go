// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package parallel runs independent calls concurrently and collects the
// first failure.
package parallel

import (
	"context"
	"sync"
)

// InvokeN calls 'call' for i in [0, n) from at most 'limit' goroutines (all n
// at once when limit <= 0). The first error cancels the context passed to the
// calls; calls not yet started are then skipped. It returns once every
// started call has returned, with the first error seen or nil.
func InvokeN(ctx context.Context, n int, limit int, call func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	next := make(chan int, n)
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	wg.Add(limit)
	for w := 0; w < limit; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				err := ctx.Err()
				if err == nil {
					err = call(ctx, i)
				}
				if err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// Invoke runs each of calls on its own goroutine, as InvokeN does.
func Invoke(ctx context.Context, calls ...func(ctx context.Context) error) error {
	return InvokeN(ctx, len(calls), 0, func(ctx context.Context, i int) error {
		return calls[i](ctx)
	})
}
