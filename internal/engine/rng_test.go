package engine

import (
	"testing"
)

func TestFloats(t *testing.T) {
	tests := []struct {
		name       string
		serverSeed string
		clientSeed string
		nonce      uint64
		cursor     uint64
		count      int
	}{
		{
			name:       "single float",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			count:      1,
		},
		{
			name:       "crosses round boundary",
			serverSeed: "test_server_seed",
			clientSeed: "test_client_seed",
			nonce:      1,
			cursor:     28,
			count:      16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats(tt.serverSeed, tt.clientSeed, tt.nonce, tt.cursor, tt.count)
			if len(floats) != tt.count {
				t.Fatalf("Floats() returned %d floats, want %d", len(floats), tt.count)
			}
			for i, f := range floats {
				if f < 0 || f >= 1 {
					t.Errorf("float %d out of range [0, 1): %f", i, f)
				}
			}
		})
	}
}

func TestDeterministicStream(t *testing.T) {
	a := Floats("deterministic_test", "client_test", 42, 0, 5)
	b := Floats("deterministic_test", "client_test", 42, 0, 5)

	for i := range a {
		if a[i] != b[i] {
			t.Errorf("float %d differs: %f != %f", i, a[i], b[i])
		}
	}

	c := Floats("deterministic_test", "client_test", 43, 0, 5)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different nonces produced identical streams")
	}
}

func TestCursorMatchesSequentialRead(t *testing.T) {
	bg := NewByteGenerator("seed", "client", 7, 0)
	var seq []byte
	for i := 0; i < 40; i++ {
		seq = append(seq, bg.Next())
	}

	offset := NewByteGenerator("seed", "client", 7, 33)
	for i := 33; i < 40; i++ {
		if got := offset.Next(); got != seq[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got, seq[i])
		}
	}
}

func TestNextInRange(t *testing.T) {
	bg := NewByteGenerator("range", "client", 1, 0)
	for i := 0; i < 1000; i++ {
		v := bg.NextInRange(5, 50)
		if v < 5 || v > 50 {
			t.Fatalf("NextInRange(5, 50) = %d", v)
		}
	}
	if v := bg.NextInRange(9, 9); v != 9 {
		t.Errorf("degenerate range returned %d", v)
	}
}

func BenchmarkFloats(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Floats("benchmark_server_seed", "benchmark_client_seed", uint64(i), 0, 8)
	}
}
