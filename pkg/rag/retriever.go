package rag

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"nexus-hq/nexus/pkg/mcp"
	"nexus-hq/nexus/pkg/proxy/types"
)

// Retrieval defaults applied when the request leaves them unset.
const (
	DefaultLimit          uint64  = 10
	DefaultScoreThreshold float64 = 0.5
	DefaultWeightedAlpha  float64 = 0.5
)

// LLMClient produces a plain-text completion for an internal prompt; the
// retriever uses it for keyword extraction. The gateway's own chat dispatch
// path implements it so extraction shares routing and cancellation with the
// inbound request.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder turns texts into embedding vectors via the gateway's embeddings
// path.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float64, error)
}

// Options configures a Retriever from the rag section of the config file.
type Options struct {
	// Policy selects how retrieved context is merged.
	Policy MergePolicy

	// ContextWindow is the default count of trailing user turns for the
	// vector query when the request does not override it.
	ContextWindow uint64

	// RagPrompt is an optional preamble placed before the context.
	RagPrompt string

	// SystemSupported reports whether the active prompt template accepts a
	// system message.
	SystemSupported bool

	// Observer, when set, receives the fused point count of each run.
	Observer func(points int)
}

// Retriever runs the hybrid search pipeline against the MCP search fleet.
type Retriever struct {
	mcp      *mcp.Registry
	llm      LLMClient
	embedder Embedder
	opts     Options
	logger   *slog.Logger
}

// NewRetriever wires a Retriever to the MCP registry and the gateway's
// internal LLM paths.
func NewRetriever(registry *mcp.Registry, llm LLMClient, embedder Embedder, opts Options) *Retriever {
	if opts.Policy == "" {
		opts.Policy = PolicySystemMessage
	}
	if opts.ContextWindow == 0 {
		opts.ContextWindow = 1
	}
	return &Retriever{
		mcp:      registry,
		llm:      llm,
		embedder: embedder,
		opts:     opts,
		logger:   slog.Default().With("component", "rag"),
	}
}

// Retrieve runs keyword and vector search in parallel, fuses the results,
// and merges the winning context into req in place.
func (r *Retriever) Retrieve(ctx context.Context, req *types.ChatCompletionRequest) error {
	if len(req.Messages) == 0 {
		return ErrNoMessages
	}

	limit := DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	scoreThreshold := DefaultScoreThreshold
	if req.ScoreThreshold != nil {
		scoreThreshold = *req.ScoreThreshold
	}
	alpha := DefaultWeightedAlpha
	if req.WeightedAlpha != nil {
		alpha = *req.WeightedAlpha
	}
	contextWindow := r.opts.ContextWindow
	if req.ContextWindow != nil {
		contextWindow = *req.ContextWindow
	}

	keywordQuery := KeywordQuery(req.Messages)
	vectorQuery := VectorQuery(req.Messages, contextWindow)

	var keywordHits []Hit
	var vectorHits []Point

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.keywordSearch(gctx, req, keywordQuery, limit)
		if err != nil {
			return err
		}
		keywordHits = hits
		return nil
	})
	g.Go(func() error {
		points, err := r.vectorSearch(gctx, req, vectorQuery, limit, scoreThreshold)
		if err != nil {
			return err
		}
		vectorHits = points
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	points := Fuse(keywordHits, vectorHits, alpha, limit)
	r.logger.Info("hybrid retrieval completed",
		"keyword_hits", len(keywordHits), "vector_hits", len(vectorHits), "fused", len(points))
	if r.opts.Observer != nil {
		r.opts.Observer(len(points))
	}

	return MergeContext(req, points, r.opts.Policy, r.opts.RagPrompt, r.opts.SystemSupported)
}
