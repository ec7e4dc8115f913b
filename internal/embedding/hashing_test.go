package embedding

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/hyperjump/simgroup/internal/vector"
)

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "Musée du Louvre, Paris")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "Musée du Louvre, Paris")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should embed to the same vector")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestHashingEmbedder_SharedWordsScoreHigher(t *testing.T) {
	e := NewHashingEmbedder(256)
	vecs, err := e.EmbedBatch(context.Background(), []string{
		"eiffel tower paris landmark",
		"Eiffel Tower, Paris",
		"sushi restaurant tokyo",
	})
	if err != nil {
		t.Fatal(err)
	}

	near := vector.Cosine(vecs[0], vecs[1])
	far := vector.Cosine(vecs[0], vecs[2])
	if near <= 0.65 {
		t.Errorf("shared-word similarity = %v, want above 0.65", near)
	}
	if far >= near {
		t.Errorf("unrelated similarity %v should be below %v", far, near)
	}
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	e := NewHashingEmbedder(0)
	if e.Dimensions() != 384 {
		t.Errorf("Dimensions() = %d, want 384", e.Dimensions())
	}
	v, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	for i, x := range v {
		if x != 0 {
			t.Fatalf("v[%d] = %v, want 0", i, x)
		}
	}
}

func TestHashingEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingEmbedder(8).EmbedBatch(ctx, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
