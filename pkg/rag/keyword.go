package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"nexus-hq/nexus/pkg/mcp"
	"nexus-hq/nexus/pkg/proxy"
	"nexus-hq/nexus/pkg/proxy/types"
)

// keywordExtractionPrompt asks the chat backend to reduce free text to
// space-separated search keywords.
const keywordExtractionPrompt = "Extract the keywords from the following text. The keywords should be separated by spaces.\n\nText: %s"

// Hit is one keyword-search result.
type Hit struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// keywordHits tolerates both a bare array and a wrapped object on the wire.
type keywordHits struct {
	Hits []Hit `json:"hits"`
}

// decodeHits parses the text an MCP search tool returned.
func decodeHits(text string) ([]Hit, error) {
	var hits []Hit
	if err := json.Unmarshal([]byte(text), &hits); err == nil {
		return hits, nil
	}
	var wrapped keywordHits
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, proxy.Operationf("failed to decode keyword search result: %v", err)
	}
	return wrapped.Hits, nil
}

// keywordSearch dispatches the query against whichever keyword-search MCP
// service is connected. With none configured it returns no hits and logs a
// warning rather than failing the request.
func (r *Retriever) keywordSearch(ctx context.Context, req *types.ChatCompletionRequest, query string, limit uint64) ([]Hit, error) {
	svc := r.mcp.FirstService(mcp.ServiceKeywordSearch, mcp.ServiceElasticSearch, mcp.ServiceTidbSearch)
	if svc == nil {
		r.logger.Warn("no keyword search MCP service configured, skipping keyword search")
		return nil, nil
	}

	var toolName string
	var args map[string]interface{}

	switch svc.Name {
	case mcp.ServiceKeywordSearch:
		if req.KwSearchIndex == "" {
			return nil, &proxy.BadRequestError{Message: "kw_search_index is required for keyword search"}
		}
		keywords, err := r.extractKeywords(ctx, query)
		if err != nil {
			return nil, err
		}
		toolName = "search_documents"
		args = map[string]interface{}{
			"index_name": req.KwSearchIndex,
			"query":      keywords,
			"limit":      limit,
		}

	case mcp.ServiceElasticSearch:
		if req.EsSearchIndex == "" {
			return nil, &proxy.BadRequestError{Message: "es_search_index is required for Elasticsearch keyword search"}
		}
		if len(req.EsSearchFields) == 0 {
			return nil, &proxy.BadRequestError{Message: "es_search_fields is required for Elasticsearch keyword search"}
		}
		toolName = "search"
		args = map[string]interface{}{
			"index":  req.EsSearchIndex,
			"query":  query,
			"fields": req.EsSearchFields,
			"size":   limit,
		}

	case mcp.ServiceTidbSearch:
		if req.TidbSearchDatabase == "" {
			return nil, &proxy.BadRequestError{Message: "tidb_search_database is required for TiDB keyword search"}
		}
		if req.TidbSearchTableName == "" {
			return nil, &proxy.BadRequestError{Message: "tidb_search_table_name is required for TiDB keyword search"}
		}
		keywords, err := r.extractKeywords(ctx, query)
		if err != nil {
			return nil, err
		}
		toolName = "search"
		args = map[string]interface{}{
			"database":   req.TidbSearchDatabase,
			"table_name": req.TidbSearchTableName,
			"limit":      limit,
			"query":      keywords,
		}
	}

	text, err := r.mcp.CallTool(ctx, svc, toolName, args)
	if err != nil {
		return nil, err
	}

	hits, err := decodeHits(text)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("keyword search completed", "service", svc.Name, "hits", len(hits))
	return hits, nil
}

// extractKeywords asks the chat backend for space-separated keywords.
func (r *Retriever) extractKeywords(ctx context.Context, text string) (string, error) {
	keywords, err := r.llm.Complete(ctx, fmt.Sprintf(keywordExtractionPrompt, text))
	if err != nil {
		return "", err
	}
	return keywords, nil
}
