// Nukepave - nuke-and-pave backup and restore for relational databases
// Copyright (C) 2025 blubskye
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
//
// Source code: https://github.com/blubskye/nukepave

// Package worker runs independent units of work on a bounded number of goroutines.
package worker

import (
	"context"
	"runtime"
	"sync"
)

// clamp bounds the worker count to [1, n], defaulting to the CPU count
func clamp(workers, n int) int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	return workers
}

// ParallelMap applies fn to all items with at most workers running at once.
// Results and errors are returned in item order. Items not yet started
// when ctx is cancelled are not run; their error is ctx.Err().
func ParallelMap[T any, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}
	workers = clamp(workers, len(items))

	results := make([]R, len(items))
	errors := make([]error, len(items))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	stop := func(from int) ([]R, []error) {
		for j := from; j < len(items); j++ {
			errors[j] = ctx.Err()
		}
		wg.Wait()
		return results, errors
	}

	for i, item := range items {
		if ctx.Err() != nil {
			return stop(i)
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return stop(i)
		}

		wg.Add(1)
		go func(idx int, itm T) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx], errors[idx] = fn(ctx, itm)
		}(i, item)
	}

	wg.Wait()
	return results, errors
}

// FirstError returns the first non-nil error, if any
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
