package pool

import (
	"testing"
	"time"

	"torpydo/internal/netx"
)

func TestRegistryTouchAndList(t *testing.T) {
	r := newRegistry()
	now := time.Now()

	if added := r.touch("127.0.0.1:6000", now); !added {
		t.Fatalf("first touch should report added")
	}
	if added := r.touch("127.0.0.1:6000", now.Add(time.Second)); added {
		t.Fatalf("second touch of the same addr should not report added")
	}

	got := r.list()
	if len(got) != 1 || got[0] != netx.Addr("127.0.0.1:6000") {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestRegistrySweepEvictsStaleEntries(t *testing.T) {
	r := newRegistry()
	now := time.Now()

	r.touch("127.0.0.1:6000", now.Add(-10*time.Second))
	r.touch("127.0.0.1:6001", now)

	removed := r.sweep(now, 3*time.Second)
	if len(removed) != 1 || removed[0] != netx.Addr("127.0.0.1:6000") {
		t.Fatalf("expected to evict only the stale entry, got %v", removed)
	}

	got := r.list()
	if len(got) != 1 || got[0] != netx.Addr("127.0.0.1:6001") {
		t.Fatalf("unexpected survivors: %v", got)
	}
}
