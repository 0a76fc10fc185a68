package rag

import (
	"sort"
	"strings"
)

// Source tags where a retrieved point came from.
type Source string

const (
	// FromKeyword marks a point produced by keyword search.
	FromKeyword Source = "keyword"

	// FromVector marks a point produced by vector search.
	FromVector Source = "vector"
)

// Point is one retrieved context snippet with its fused score.
type Point struct {
	// Source is the snippet text handed to the LLM.
	Source string

	// Score is in [0, 1] after fusion.
	Score float64

	// From records which search produced the point; keyword wins when both
	// did.
	From Source
}

// canonicalKey trims the text used to key fusion maps. Points are keyed by
// the original string rather than a hash so distinct snippets can never
// collide.
func canonicalKey(text string) string {
	return strings.TrimSpace(text)
}

// minMaxNormalize rescales scores into [0, 1] in place. When every score is
// identical the spread is zero and all entries normalize to 0.0.
func minMaxNormalize(scores map[string]float64) {
	if len(scores) == 0 {
		return
	}

	min, max := 0.0, 0.0
	first := true
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	spread := max - min
	for k, s := range scores {
		if spread == 0 {
			scores[k] = 0.0
		} else {
			scores[k] = (s - min) / spread
		}
	}
}

// Fuse combines keyword and vector hits into a ranked point list. Each side
// is min-max normalized independently; keys present in both sides blend as
// alpha*keyword + (1-alpha)*vector, singles pass through unchanged. The
// result is sorted by score descending and truncated to limit.
func Fuse(keyword []Hit, vector []Point, alpha float64, limit uint64) []Point {
	kw := make(map[string]float64, len(keyword))
	kwText := make(map[string]string, len(keyword))
	for _, h := range keyword {
		key := canonicalKey(h.Content)
		if key == "" {
			continue
		}
		if _, ok := kw[key]; ok {
			continue
		}
		kw[key] = h.Score
		kwText[key] = h.Content
	}

	vec := make(map[string]float64, len(vector))
	vecText := make(map[string]string, len(vector))
	for _, p := range vector {
		key := canonicalKey(p.Source)
		if key == "" {
			continue
		}
		if _, ok := vec[key]; ok {
			continue
		}
		vec[key] = p.Score
		vecText[key] = p.Source
	}

	minMaxNormalize(kw)
	minMaxNormalize(vec)

	fused := make(map[string]float64, len(kw)+len(vec))
	for key, k := range kw {
		if v, ok := vec[key]; ok {
			fused[key] = alpha*k + (1-alpha)*v
		} else {
			fused[key] = k
		}
	}
	for key, v := range vec {
		if _, ok := kw[key]; !ok {
			fused[key] = v
		}
	}

	points := make([]Point, 0, len(fused))
	for key, score := range fused {
		// Keyword text is preferred when both sides produced the key.
		if text, ok := kwText[key]; ok {
			points = append(points, Point{Source: text, Score: score, From: FromKeyword})
		} else {
			points = append(points, Point{Source: vecText[key], Score: score, From: FromVector})
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Score > points[j].Score
	})

	if limit > 0 && uint64(len(points)) > limit {
		points = points[:limit]
	}
	return points
}
