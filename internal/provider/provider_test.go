package provider

import (
	"context"
	"math"
	"testing"
)

func TestLocalDeterminism(t *testing.T) {
	p := NewLocal()
	ctx := context.Background()

	a, err := p.Embed(ctx, []string{"rename symbol across files"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := p.Embed(ctx, []string{"rename symbol across files"})

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("identical input should embed identically")
		}
	}
}

func TestLocalSimilarityOrdering(t *testing.T) {
	p := NewLocal()
	ctx := context.Background()

	vecs, err := p.Embed(ctx, []string{
		"rename the widget symbol",
		"rename widget",
		"parse json frames",
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	near := Cosine(vecs[0], vecs[1])
	far := Cosine(vecs[0], vecs[2])
	if near <= far {
		t.Errorf("overlapping texts should score higher: near=%f far=%f", near, far)
	}
}

func TestLocalNormalized(t *testing.T) {
	p := NewLocal()
	vecs, _ := p.Embed(context.Background(), []string{"some text here"})

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("vector norm = %f, want 1", norm)
	}
}

func TestLocalHonorsContext(t *testing.T) {
	p := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Embed(ctx, []string{"a"}); err == nil {
		t.Error("cancelled context should abort embedding")
	}
}

func TestCosineEdgeCases(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched lengths should score 0, got %f", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector should score 0, got %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors should score 1, got %f", got)
	}
}
