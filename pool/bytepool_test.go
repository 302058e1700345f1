package pool_test

import (
	"testing"

	"github.com/momentics/proctree/pool"
)

func TestBytePoolHandsOutFullSizeBuffers(t *testing.T) {
	bp := pool.NewBytePool(128)
	b1 := bp.GetBuffer()
	if len(b1) != 128 {
		t.Fatalf("buffer length %d, want 128", len(b1))
	}
	bp.PutBuffer(b1[:10])
	b2 := bp.GetBuffer()
	if len(b2) != 128 {
		t.Fatalf("recycled buffer re-sliced to %d", len(b2))
	}
}

func TestBytePoolDropsForeignBuffers(t *testing.T) {
	bp := pool.NewBytePool(64)
	bp.PutBuffer(make([]byte, 32))
	if got := len(bp.GetBuffer()); got != 64 {
		t.Fatalf("pool handed out a foreign %d-byte buffer", got)
	}
}
