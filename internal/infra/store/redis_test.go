package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"pgregory.net/rapid"
)

func newTestStore(t testing.TB) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestSetAddReturnsCardinality(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n, err := s.SetAdd(ctx, "gates_completed_by", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected cardinality 1, got %d", n)
	}
	n, err = s.SetAdd(ctx, "gates_completed_by", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("repeated add must keep cardinality 1, got %d", n)
	}
	n, _ = s.SetAdd(ctx, "gates_completed_by", "2")
	if n != 2 {
		t.Fatalf("expected cardinality 2, got %d", n)
	}
}

func TestSetAddNewAndContains(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.SetContains(ctx, "chest_completed_by", "7")
	if err != nil || ok {
		t.Fatalf("expected absent member, got %v %v", ok, err)
	}
	added, err := s.SetAddNew(ctx, "chest_completed_by", "7")
	if err != nil || !added {
		t.Fatalf("expected first add, got %v %v", added, err)
	}
	added, err = s.SetAddNew(ctx, "chest_completed_by", "7")
	if err != nil || added {
		t.Fatalf("expected repeated add to report false, got %v %v", added, err)
	}
	ok, _ = s.SetContains(ctx, "chest_completed_by", "7")
	if !ok {
		t.Fatal("expected member to be present")
	}
}

func TestSetsAddAndCountContaining(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	stage := []string{"stone_letter_a", "stone_letter_b", "stone_letter_c"}

	count, err := s.SetsAddAndCountContaining(ctx, []string{"stone_letter_a"}, stage, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	count, _ = s.SetsAddAndCountContaining(ctx, []string{"stone_letter_a", "stone_letter_c"}, stage, "42")
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	count, _ = s.SetsAddAndCountContaining(ctx, nil, stage, "42")
	if count != 2 {
		t.Fatalf("count without adds must read current state, got %d", count)
	}
	count, _ = s.SetsAddAndCountContaining(ctx, nil, stage, "43")
	if count != 0 {
		t.Fatalf("other user must have 0, got %d", count)
	}
	if ok, _ := mr.SIsMember("stone_letter_b", "42"); ok {
		t.Fatal("stone_letter_b must stay untouched")
	}
}

func TestSetsAddAndCountConcurrentDisjoint(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, _ := newTestStore(t)
		ctx := context.Background()
		required := rapid.IntRange(1, 8).Draw(rt, "required")
		n := rapid.IntRange(1, required).Draw(rt, "concurrent")

		stage := make([]string, required)
		for i := range stage {
			stage[i] = fmt.Sprintf("stone_letter_%d", i)
		}

		var wg sync.WaitGroup
		results := make([]int, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = s.SetsAddAndCountContaining(ctx, []string{stage[i]}, stage, "42")
			}(i)
		}
		wg.Wait()

		seen := make(map[int]bool)
		for i := 0; i < n; i++ {
			if errs[i] != nil {
				rt.Fatalf("call %d failed: %v", i, errs[i])
			}
			if seen[results[i]] {
				rt.Fatalf("two calls observed the same count %d", results[i])
			}
			seen[results[i]] = true
		}
		final, err := s.SetsAddAndCountContaining(ctx, nil, stage, "42")
		if err != nil {
			rt.Fatalf("final count: %v", err)
		}
		if final != n {
			rt.Fatalf("expected final count %d, got %d", n, final)
		}
	})
}

func TestHashIncrZeroInitializes(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	v, err := s.HashIncr(ctx, "stone_stage", "5", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
	if got := mr.HGet("stone_stage", "5"); got != "0" {
		t.Fatalf("expected field initialized to 0, got %q", got)
	}
	v, _ = s.HashIncr(ctx, "stone_stage", "5", 1)
	if v != 1 {
		t.Fatalf("expected 1, got %d", v)
	}
}

func TestHashSet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.HashSet(ctx, "stone_stage", "5", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := s.HashIncr(ctx, "stone_stage", "5", 0)
	if v != 3 {
		t.Fatalf("expected 3, got %d", v)
	}
}

func TestHashAdvance(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, v, err := s.HashAdvance(ctx, "stone_stage", "9", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != 1 {
		t.Fatalf("expected advance to 1, got %v %d", ok, v)
	}
	ok, v, _ = s.HashAdvance(ctx, "stone_stage", "9", 0)
	if ok || v != 1 {
		t.Fatalf("stale advance must not apply, got %v %d", ok, v)
	}
}

func TestHashAdvanceExactlyOnceConcurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := s.HashAdvance(ctx, "stone_stage", "9", 0)
			if err != nil {
				t.Errorf("advance: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one advance, got %d", winners)
	}
	v, _ := s.HashIncr(ctx, "stone_stage", "9", 0)
	if v != 1 {
		t.Fatalf("expected stage 1, got %d", v)
	}
}

func TestSetsLen(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	_, _ = mr.SetAdd("a", "1", "2")
	_, _ = mr.SetAdd("b", "1")

	lens, err := s.SetsLen(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{2, 1, 0}
	for i := range want {
		if lens[i] != want[i] {
			t.Fatalf("set %d: expected %d, got %d", i, want[i], lens[i])
		}
	}
}

func TestStoreErrorsSurface(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	if _, err := s.SetsAddAndCountContaining(context.Background(), []string{"a"}, []string{"a"}, "1"); err == nil {
		t.Fatal("expected error from closed backend")
	}
}
