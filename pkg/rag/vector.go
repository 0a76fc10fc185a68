package rag

import (
	"context"
	"encoding/json"

	"nexus-hq/nexus/pkg/mcp"
	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/types"
)

// vectorPoint is one search_points result on the wire.
type vectorPoint struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// vectorPoints tolerates both a bare array and a wrapped object.
type vectorPoints struct {
	Points []vectorPoint `json:"points"`
}

// decodePoints parses the text the search_points tool returned.
func decodePoints(text string) ([]vectorPoint, error) {
	var points []vectorPoint
	if err := json.Unmarshal([]byte(text), &points); err == nil {
		return points, nil
	}
	var wrapped vectorPoints
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, proxy.Operationf("failed to decode vector search result: %v", err)
	}
	return wrapped.Points, nil
}

// vectorSearch embeds the query through the gateway's embeddings path, then
// runs search_points against every requested collection. Results are
// concatenated across collections with duplicate sources dropped, first
// occurrence winning.
func (r *Retriever) vectorSearch(ctx context.Context, req *types.ChatCompletionRequest, query string, limit uint64, scoreThreshold float64) ([]Point, error) {
	if len(req.VdbCollectionName) == 0 {
		return nil, &proxy.BadRequestError{Message: "vdb_collection_name is required for vector search"}
	}

	svc := r.mcp.Service(mcp.ServiceQdrant)
	if svc == nil {
		r.logger.Warn("no vector search MCP service configured, skipping vector search")
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, proxy.Operationf("embeddings backend returned no vectors")
	}
	embedding := vectors[0]

	seen := make(map[string]bool)
	var out []Point
	for _, collection := range req.VdbCollectionName {
		text, err := r.mcp.CallTool(ctx, svc, "search_points", map[string]interface{}{
			"name":            collection,
			"vector":          embedding,
			"limit":           limit,
			"score_threshold": scoreThreshold,
		})
		if err != nil {
			return nil, err
		}

		points, err := decodePoints(text)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			if seen[p.Source] {
				continue
			}
			seen[p.Source] = true
			out = append(out, Point{Source: p.Source, Score: p.Score, From: FromVector})
		}
	}

	r.logger.Debug("vector search completed",
		"collections", len(req.VdbCollectionName), "points", len(out))
	return out, nil
}
