package history

import (
	"path/filepath"
	"testing"
)

func TestPublicAppendCapsAt50(t *testing.T) {
	dir := t.TempDir()
	p := NewPublic(filepath.Join(dir, "public.log"), nil)

	for i := 0; i < 60; i++ {
		p.Append("alice", "msg")
	}
	entries := p.Load()
	if len(entries) != PublicCapacity {
		t.Fatalf("len = %d, want %d", len(entries), PublicCapacity)
	}
}

func TestPublicAppendOrderOldestFirst(t *testing.T) {
	dir := t.TempDir()
	p := NewPublic(filepath.Join(dir, "public.log"), nil)

	p.Append("alice", "one")
	p.Append("alice", "two")
	p.Append("alice", "three")

	entries := p.Load()
	want := []string{"one", "two", "three"}
	if len(entries) != len(want) {
		t.Fatalf("len = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Text != w {
			t.Fatalf("entries[%d] = %q, want %q", i, entries[i].Text, w)
		}
	}
}

func TestPublicAppendEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	p := NewPublic(filepath.Join(dir, "public.log"), nil)

	for i := 0; i < PublicCapacity; i++ {
		p.Append("alice", "keep-out")
	}
	p.Append("alice", "newest")

	entries := p.Load()
	if len(entries) != PublicCapacity {
		t.Fatalf("len = %d, want %d", len(entries), PublicCapacity)
	}
	if entries[len(entries)-1].Text != "newest" {
		t.Fatalf("last entry = %q, want newest", entries[len(entries)-1].Text)
	}
}

func TestPrivatePairSymmetry(t *testing.T) {
	dir := t.TempDir()
	priv := NewPrivate(dir, nil)

	priv.Append("alice", "bob", "hi")
	priv.Append("bob", "alice", "hey")

	a := priv.Load("alice", "bob")
	b := priv.Load("bob", "alice")
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("len(a)=%d len(b)=%d, want 2 each", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("a[%d]=%v != b[%d]=%v", i, a[i], i, b[i])
		}
	}
}

func TestPrivateExists(t *testing.T) {
	dir := t.TempDir()
	priv := NewPrivate(dir, nil)
	if priv.Exists("alice", "bob") {
		t.Fatalf("should not exist before any append")
	}
	priv.Append("alice", "bob", "hi")
	if !priv.Exists("alice", "bob") {
		t.Fatalf("should exist after append")
	}
	if !priv.Exists("bob", "alice") {
		t.Fatalf("should exist regardless of argument order")
	}
}
