package completion

import (
	"context"
	"errors"
	"os"
	"sort"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestMergeChoices(t *testing.T) {
	local := []string{"X"}
	account := []string{"Y"}
	tests := []struct {
		choice Choice
		want   []string
	}{
		{ChoiceMerge, []string{"X", "Y"}},
		{ChoiceReplace, []string{"X"}},
		{ChoiceDiscard, []string{"Y"}},
	}
	for _, tt := range tests {
		got := Merge(local, account, tt.choice)
		if !equal(got, tt.want) {
			t.Errorf("Merge(%s)=%v, want %v", tt.choice, got, tt.want)
		}
	}
}

func TestMergeDeduplicates(t *testing.T) {
	got := Merge([]string{"b", "a", "a"}, []string{"a", "c"}, ChoiceMerge)
	if !equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("Merge=%v", got)
	}
}

func TestParseChoice(t *testing.T) {
	if c, err := ParseChoice("discard"); err != nil || c != ChoiceDiscard {
		t.Fatalf("ParseChoice(discard)=%q,%v", c, err)
	}
	if _, err := ParseChoice("both"); err == nil {
		t.Fatal("expected an error for an unknown choice")
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir, "Some User", "overworld")

	keys, err := s.Load(ctx)
	if err != nil || len(keys) != 0 {
		t.Fatalf("empty Load=%v,%v", keys, err)
	}
	for _, k := range []string{"b/2", "a/1", "b/2"} {
		if err := s.Add(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Remove(ctx, "missing"); err != nil {
		t.Fatal(err)
	}

	reopened := NewFileStore(dir, "Some User", "overworld")
	keys, err = reopened.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equal(keys, []string{"a/1", "b/2"}) {
		t.Fatalf("Load=%v", keys)
	}

	if err := os.WriteFile(s.Path(), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx); err == nil {
		t.Fatal("corrupt file should fail to load")
	}
}

// fakeRedis implements RedisClient over an in-memory map of sets.
type fakeRedis struct {
	sets map[string]map[string]bool
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: make(map[string]map[string]bool)}
}

func (f *fakeRedis) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	var out []string
	for k := range f.sets[key] {
		out = append(out, k)
	}
	return redis.NewStringSliceResult(out, f.err)
}

func (f *fakeRedis) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]bool)
	}
	n := 0
	for _, m := range members {
		k := m.(string)
		if !f.sets[key][k] {
			f.sets[key][k] = true
			n++
		}
	}
	return redis.NewIntResult(int64(n), nil)
}

func (f *fakeRedis) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	n := 0
	for _, m := range members {
		if f.sets[key][m.(string)] {
			delete(f.sets[key], m.(string))
			n++
		}
	}
	return redis.NewIntResult(int64(n), nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, k := range keys {
		delete(f.sets, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	rc := newFakeRedis()
	s := NewRedisStore(rc, "u1", "overworld")

	if err := s.Save(ctx, []string{"b/2", "a/1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, "c/3"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "b/2"); err != nil {
		t.Fatal(err)
	}
	keys, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equal(keys, []string{"a/1", "c/3"}) {
		t.Fatalf("Load=%v", keys)
	}
	if _, ok := rc.sets[RedisKey("u1", "overworld")]; !ok {
		t.Fatalf("set stored under unexpected key: %v", rc.sets)
	}
}

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	keys map[string]bool
	err  error
}

func newMemStore(keys ...string) *memStore {
	s := &memStore{keys: make(map[string]bool)}
	for _, k := range keys {
		s.keys[k] = true
	}
	return s
}

func (s *memStore) list() []string {
	var out []string
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *memStore) Load(ctx context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.list(), nil
}

func (s *memStore) Save(ctx context.Context, keys []string) error {
	if s.err != nil {
		return s.err
	}
	s.keys = make(map[string]bool)
	for _, k := range keys {
		s.keys[k] = true
	}
	return nil
}

func (s *memStore) Add(ctx context.Context, key string) error {
	if s.err != nil {
		return s.err
	}
	s.keys[key] = true
	return nil
}

func (s *memStore) Remove(ctx context.Context, key string) error {
	if s.err != nil {
		return s.err
	}
	delete(s.keys, key)
	return nil
}

func TestSyncerConflictResolve(t *testing.T) {
	ctx := context.Background()
	local, account := newMemStore("X"), newMemStore("Y")
	s := NewSyncer(local, account)

	res, err := s.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Conflict == nil || len(res.Apply) != 0 {
		t.Fatalf("Start=%+v, want a pending conflict", res)
	}

	// changes made while the dialog is open are folded in
	if err := s.Record(ctx, "Z", true); err != nil {
		t.Fatal(err)
	}
	keys, err := s.Resolve(ctx, ChoiceMerge)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"X", "Y", "Z"}
	if !equal(keys, want) || !equal(local.list(), want) || !equal(account.list(), want) {
		t.Fatalf("keys=%v local=%v account=%v, want %v", keys, local.list(), account.list(), want)
	}
	if _, err := s.Resolve(ctx, ChoiceMerge); !errors.Is(err, ErrNoConflict) {
		t.Fatalf("second Resolve err=%v, want ErrNoConflict", err)
	}
}

func TestSyncerCopiesOneSidedProgress(t *testing.T) {
	ctx := context.Background()
	local, account := newMemStore(), newMemStore("Y")
	res, err := NewSyncer(local, account).Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Conflict != nil || !equal(res.Apply, []string{"Y"}) || !equal(local.list(), []string{"Y"}) {
		t.Fatalf("res=%+v local=%v", res, local.list())
	}

	local, account = newMemStore("X"), newMemStore()
	res, err = NewSyncer(local, account).Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equal(res.Apply, []string{"X"}) || !equal(account.list(), []string{"X"}) {
		t.Fatalf("res=%+v account=%v", res, account.list())
	}
}

func TestSyncerAccountFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	local, account := newMemStore("X"), newMemStore("Y")
	account.err = errors.New("connection refused")
	s := NewSyncer(local, account)

	res, err := s.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Notice == "" || !equal(res.Apply, []string{"X"}) || !s.Offline() {
		t.Fatalf("Start=%+v offline=%v", res, s.Offline())
	}
	if err := s.Record(ctx, "W", true); err != nil {
		t.Fatalf("offline Record err=%v", err)
	}
	if !local.keys["W"] {
		t.Error("local store missed the change")
	}
}

func TestSyncerRecordAccountError(t *testing.T) {
	ctx := context.Background()
	local, account := newMemStore(), newMemStore()
	s := NewSyncer(local, account)
	if _, err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	account.err = errors.New("timeout")
	if err := s.Record(ctx, "A", true); !errors.Is(err, ErrAccountUnavailable) {
		t.Fatalf("Record err=%v, want ErrAccountUnavailable", err)
	}
	if !local.keys["A"] || !s.Offline() {
		t.Fatalf("local=%v offline=%v", local.list(), s.Offline())
	}
	if err := s.Record(ctx, "A", false); err != nil {
		t.Fatalf("Record after fallback err=%v", err)
	}
}

func TestSyncerResolveRetriesAfterFailedSave(t *testing.T) {
	ctx := context.Background()
	local, account := newMemStore("X"), newMemStore("Y")
	s := NewSyncer(local, account)
	if _, err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "Z", true); err != nil {
		t.Fatal(err)
	}

	local.err = errors.New("disk full")
	if _, err := s.Resolve(ctx, ChoiceMerge); err == nil {
		t.Fatal("Resolve with failing local store should fail")
	}
	if s.Pending() == nil {
		t.Fatal("conflict dropped after failed save")
	}

	local.err = nil
	keys, err := s.Resolve(ctx, ChoiceMerge)
	if err != nil {
		t.Fatalf("retry Resolve err=%v", err)
	}
	want := []string{"X", "Y", "Z"}
	if !equal(keys, want) || !equal(local.list(), want) || !equal(account.list(), want) {
		t.Fatalf("keys=%v local=%v account=%v, want %v", keys, local.list(), account.list(), want)
	}
	if s.Pending() != nil {
		t.Error("conflict still pending after successful resolve")
	}
}
