package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-chat/internal/helper"
	"pdf-chat/internal/models"
)

const (
	collectionName = "session_chunks"
	seqKey         = "seq"
	chunkIDKey     = "chunk_id"
)

// Index is an in-memory chromem-go collection over the chunks of one
// Process run. It is never persisted and never mutated after NewIndex.
type Index struct {
	collection *chromem.Collection
	embedder   embeddings.Embedder
	count      int
}

// NewIndex inserts the embedded chunks into a fresh collection. embedder is
// used for text queries and must be the one that produced the embeddings.
func NewIndex(ctx context.Context, embedder embeddings.Embedder, chunkEmbeddings []models.ChunkEmbedding) (*Index, error) {
	if len(chunkEmbeddings) == 0 {
		return nil, models.ErrNoChunks
	}

	db := chromem.NewDB()
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	c, err := db.CreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunkEmbeddings))
	for i, ce := range chunkEmbeddings {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		docs[i] = chromem.Document{
			ID:      id,
			Content: ce.Content,
			Metadata: map[string]string{
				seqKey:     strconv.Itoa(i),
				chunkIDKey: strconv.Itoa(ce.ChunkID),
			},
			Embedding: ce.Embedding,
		}
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Info().Int("documents", len(docs)).Msg("Built vector index")

	return &Index{collection: c, embedder: embedder, count: len(docs)}, nil
}

// Count returns the number of indexed chunks
func (ix *Index) Count() int {
	return ix.count
}

// Query returns the min(k, Count) chunks nearest to vector ordered by
// increasing cosine distance. Equal distances keep insertion order.
func (ix *Index) Query(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}

	// chromem's result order is unspecified for equal similarities, so rank
	// the full collection and apply the tie-break here
	results, err := ix.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       ix.count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	seqs := make([]int, len(results))
	for i, r := range results {
		seqs[i], _ = strconv.Atoi(r.Metadata[seqKey])
	}
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ra, rb := results[order[a]], results[order[b]]
		if ra.Similarity != rb.Similarity {
			return ra.Similarity > rb.Similarity
		}
		return seqs[order[a]] < seqs[order[b]]
	})

	n := min(k, len(results))
	out := make([]models.SearchResult, n)
	for i := 0; i < n; i++ {
		r := results[order[i]]
		chunkID, _ := strconv.Atoi(r.Metadata[chunkIDKey])
		out[i] = models.SearchResult{
			Chunk:      models.Chunk{Content: r.Content, ChunkID: chunkID},
			Similarity: r.Similarity,
			Distance:   1 - r.Similarity,
		}
	}
	return out, nil
}

// QueryText embeds text with the index's embedder and queries with it
func (ix *Index) QueryText(ctx context.Context, text string, k int) ([]models.SearchResult, error) {
	vector, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, models.ServiceError("embed query", err)
	}
	return ix.Query(ctx, vector, k)
}
