package openai

import "testing"

func TestNormalizeEmbeddingInputs(t *testing.T) {
	idx, in, out := normalizeEmbeddingInputs([][]byte{[]byte("a"), []byte("  "), nil, []byte("b")}, 3)

	if len(out) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(out))
	}
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 3 {
		t.Fatalf("unexpected index map %v", idx)
	}
	if len(in) != 2 || in[0] != "a" || in[1] != "b" {
		t.Fatalf("unexpected inputs %v", in)
	}
	if len(out[1]) != 3 || len(out[2]) != 3 {
		t.Fatalf("blank inputs should get zero vectors, got %v %v", out[1], out[2])
	}
	if out[0] != nil {
		t.Fatalf("non-blank input should be left for the provider")
	}
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		in   []float64
		dim  int
		want []float32
	}{
		{in: []float64{1, 2, 3}, dim: 2, want: []float32{1, 2}},
		{in: []float64{1}, dim: 3, want: []float32{1, 0, 0}},
	}
	for _, tt := range tests {
		got := fitDimensions(tt.in, tt.dim)
		if len(got) != len(tt.want) {
			t.Fatalf("expected %v, got %v", tt.want, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		}
	}
}
