package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/solace/pkg/store"
)

type history struct {
	Turns []string `json:"turns"`
}

func TestMemory_GetSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := store.NewMemory()

	if err := m.Set(ctx, "companion:history", history{Turns: []string{"hi", "hello"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got history
	if err := m.Get(ctx, "companion:history", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Turns) != 2 || got.Turns[1] != "hello" {
		t.Errorf("got %+v", got)
	}
}

func TestMemory_Overwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var m store.Memory

	_ = m.Set(ctx, "k", 1)
	_ = m.Set(ctx, "k", 2)
	var n int
	if err := m.Get(ctx, "k", &n); err != nil || n != 2 {
		t.Errorf("Get = %d, %v; want 2", n, err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestMemory_NotFound(t *testing.T) {
	t.Parallel()
	var v string
	err := store.NewMemory().Get(context.Background(), "missing", &v)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := store.NewMemory()
	_ = m.Set(ctx, "k", "v")
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	var v string
	if err := m.Get(ctx, "k", &v); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemory_EncodeError(t *testing.T) {
	t.Parallel()
	err := store.NewMemory().Set(context.Background(), "ch", make(chan int))
	if err == nil {
		t.Fatal("expected encode error for channel value")
	}
}

func TestMemory_DecodeError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := store.NewMemory()
	_ = m.Set(ctx, "k", "text")
	var n int
	if err := m.Get(ctx, "k", &n); err == nil || errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want a decode error", err)
	}
}
