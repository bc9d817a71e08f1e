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

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParallelMapKeepsOrder(t *testing.T) {
	t.Parallel()

	items := []int{5, 1, 4, 2, 3}
	got, errs := ParallelMap(context.Background(), 3, items, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})
	for i, n := range items {
		if got[i] != n*10 {
			t.Errorf("result[%d] = %d, want %d", i, got[i], n*10)
		}
	}
	if err := FirstError(errs); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParallelMapBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	items := make([]int, 20)
	ParallelMap(context.Background(), 4, items, func(_ context.Context, _ int) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})
	if p := peak.Load(); p > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", p)
	}
}

func TestParallelMapErrorsPerItem(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, errs := ParallelMap(context.Background(), 2, []string{"ok", "bad", "ok"}, func(_ context.Context, s string) (int, error) {
		if s == "bad" {
			return 0, boom
		}
		return 1, nil
	})
	if errs[0] != nil || !errors.Is(errs[1], boom) || errs[2] != nil {
		t.Errorf("errs = %v", errs)
	}
	if !errors.Is(FirstError(errs), boom) {
		t.Error("FirstError should return boom")
	}
}

func TestParallelMapCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	_, errs := ParallelMap(ctx, 1, []int{1, 2, 3}, func(_ context.Context, _ int) (int, error) {
		ran.Add(1)
		return 0, nil
	})
	if ran.Load() != 0 {
		t.Errorf("%d items ran after cancellation", ran.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("errs[%d] = %v, want context.Canceled", i, err)
		}
	}
}
