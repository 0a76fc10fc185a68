package rag

import (
	"math"
	"testing"
)

func TestFuseRanking(t *testing.T) {
	keyword := []Hit{
		{Content: "X", Score: 1.0},
		{Content: "Y", Score: 3.0},
	}
	vector := []Point{
		{Source: "X", Score: 0.8},
		{Source: "Z", Score: 0.4},
	}

	points := Fuse(keyword, vector, 0.5, 3)
	if len(points) != 3 {
		t.Fatalf("fused %d points, want 3", len(points))
	}

	wantOrder := []string{"Y", "X", "Z"}
	wantScore := map[string]float64{"Y": 1.0, "X": 0.5, "Z": 0.0}
	for i, p := range points {
		if p.Source != wantOrder[i] {
			t.Errorf("rank %d = %q, want %q", i, p.Source, wantOrder[i])
		}
		if math.Abs(p.Score-wantScore[p.Source]) > 1e-9 {
			t.Errorf("score[%s] = %v, want %v", p.Source, p.Score, wantScore[p.Source])
		}
	}

	// X appears in both maps; the keyword point is preferred.
	for _, p := range points {
		if p.Source == "X" && p.From != FromKeyword {
			t.Errorf("overlapping point attributed to %s, want keyword", p.From)
		}
	}
}

func TestFuseBoundaries(t *testing.T) {
	t.Run("both sides empty", func(t *testing.T) {
		if got := Fuse(nil, nil, 0.5, 10); len(got) != 0 {
			t.Errorf("Fuse(nil, nil) = %v, want empty", got)
		}
	})

	t.Run("keyword only equals normalized keyword", func(t *testing.T) {
		points := Fuse([]Hit{{Content: "A", Score: 2.0}, {Content: "B", Score: 4.0}}, nil, 0.5, 10)
		if len(points) != 2 {
			t.Fatalf("got %d points, want 2", len(points))
		}
		if points[0].Source != "B" || points[0].Score != 1.0 {
			t.Errorf("top point = %+v, want B at 1.0", points[0])
		}
		if points[1].Source != "A" || points[1].Score != 0.0 {
			t.Errorf("bottom point = %+v, want A at 0.0", points[1])
		}
	})

	t.Run("equal scores normalize to zero", func(t *testing.T) {
		points := Fuse([]Hit{{Content: "A", Score: 7.0}, {Content: "B", Score: 7.0}}, nil, 0.5, 10)
		for _, p := range points {
			if p.Score != 0.0 {
				t.Errorf("score[%s] = %v, want 0.0 when max == min", p.Source, p.Score)
			}
		}
	})

	t.Run("limit truncates", func(t *testing.T) {
		keyword := []Hit{
			{Content: "A", Score: 1}, {Content: "B", Score: 2},
			{Content: "C", Score: 3}, {Content: "D", Score: 4},
		}
		points := Fuse(keyword, nil, 0.5, 2)
		if len(points) != 2 {
			t.Fatalf("got %d points, want 2", len(points))
		}
		if points[0].Source != "D" || points[1].Source != "C" {
			t.Errorf("top points = %q, %q", points[0].Source, points[1].Source)
		}
	})

	t.Run("scores stay in unit range", func(t *testing.T) {
		keyword := []Hit{{Content: "A", Score: -3}, {Content: "B", Score: 12}}
		vector := []Point{{Source: "A", Score: 100}, {Source: "C", Score: -50}}
		for _, p := range Fuse(keyword, vector, 0.3, 10) {
			if p.Score < 0 || p.Score > 1 {
				t.Errorf("score[%s] = %v outside [0, 1]", p.Source, p.Score)
			}
		}
	})

	t.Run("keys trimmed before matching", func(t *testing.T) {
		points := Fuse([]Hit{{Content: "  A  ", Score: 1}}, []Point{{Source: "A", Score: 1}}, 0.5, 10)
		if len(points) != 1 {
			t.Errorf("trimmed duplicates not merged: %v", points)
		}
	})
}
