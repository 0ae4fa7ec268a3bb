package domain

// ChunkMetadata is the provenance carried by every page and chunk.
type ChunkMetadata struct {
	Source  string `json:"source"`
	Path    string `json:"path"`
	Page    int    `json:"page"`
	ChunkID int    `json:"chunk_id"`
}

// Page is the extracted text of a single document page.
type Page struct {
	Text     string
	Metadata ChunkMetadata
}

// Chunk is a bounded-length segment of a page used for indexing.
type Chunk struct {
	Text     string
	Metadata ChunkMetadata
}

// SearchResult represents a matching chunk with its distance to the query.
// Lower scores are more similar.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Citation is a ranked, scored retrieval result with provenance.
type Citation struct {
	Rank    int     `json:"rank"`
	Source  string  `json:"source"`
	Path    string  `json:"path"`
	Page    int     `json:"page"`
	ChunkID int     `json:"chunk_id"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
	Text    string  `json:"text"`
}

// Hit is an extracted field value paired with the citation that justified it.
type Hit struct {
	Field        string `json:"field"`
	Value        string `json:"value"`
	CitationRank int    `json:"citation_rank"`
	Page         int    `json:"page"`
	Source       string `json:"source"`
	Snippet      string `json:"snippet"`
}

// Query holds the retrieval parameters of a single question.
// An empty Source means no source filtering.
type Query struct {
	K      int
	FetchK int
	Source string
}

// Answer is the full response of the retrieval and extraction pipeline.
type Answer struct {
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Citations []Citation        `json:"citations"`
	Extracted map[string]string `json:"extracted"`
	Hits      []Hit             `json:"hit_map"`
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(text string) ([]float64, error)
}

// StatefulEmbedder is an Embedder whose prepared state must be persisted
// alongside the index to reproduce its vectors after a reload.
type StatefulEmbedder interface {
	Embedder
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Chunker splits page-level text into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(pages []Page) ([]Chunk, error)
}
