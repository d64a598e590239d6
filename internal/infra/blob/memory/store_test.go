package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"meshcore/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	meta := map[string]string{"cells": "4"}
	info, err := s.Put(ctx, "checkpoints/a.json", bytes.NewReader([]byte("{}")), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["cells"] = "changed"
	if info.Size != 2 || info.ETag == "" || info.Metadata["cells"] != "4" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "checkpoints/a.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "checkpoints/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "{}" || got.ContentType != "application/json" {
		t.Fatalf("get returned %q %+v", body, got)
	}
	if _, err := s.Put(ctx, "other/b", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := s.List(ctx, "checkpoints/")
	if err != nil || len(list) != 1 || list[0].Key != "checkpoints/a.json" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if all, _ := s.List(ctx, ""); len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected two sorted entries, got %+v", all)
	}
	if ok, _ := s.Delete(ctx, "checkpoints/a.json"); !ok {
		t.Fatalf("expected delete to report existence")
	}
	if ok, _ := s.Delete(ctx, "checkpoints/a.json"); ok {
		t.Fatalf("second delete reported existence")
	}
	if _, err := s.Head(ctx, "checkpoints/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "checkpoints/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "other/b", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestPutHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
