package persistence

import (
	"errors"
	"testing"
	"time"

	"meshcore/pkg/domain"
)

func TestEncodeFillsVersionAndRequiresID(t *testing.T) {
	if _, err := Encode(domain.Snapshot{}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	b, err := Encode(domain.Snapshot{ID: "a", SpaceDim: 2})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != domain.SnapshotVersion || got.ID != "a" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestDecodeRejectsNewerVersions(t *testing.T) {
	if _, err := Decode([]byte(`{"id":"a","version":99}`)); err == nil {
		t.Fatalf("expected version error")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSortSummaries(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []domain.SnapshotSummary{
		{ID: "c", CreatedAt: t0.Add(time.Second)},
		{ID: "b", CreatedAt: t0},
		{ID: "a", CreatedAt: t0},
	}
	SortSummaries(list)
	if list[0].ID != "a" || list[1].ID != "b" || list[2].ID != "c" {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestNotFound(t *testing.T) {
	var nf domain.ErrNotFound
	if !errors.As(NotFound("x"), &nf) || nf.ID != "x" || nf.Entity != domain.EntitySnapshot {
		t.Fatalf("unexpected error %v", NotFound("x"))
	}
}
