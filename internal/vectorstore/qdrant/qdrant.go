package qdrant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"packrag/internal/domain"
)

// pointNamespace scopes the deterministic point ids derived from chunk provenance.
var pointNamespace = uuid.MustParse("6f1d3c52-8f0e-4f7a-9a43-0c6f1b7f2d10")

// Storage is a minimal REST client to Qdrant.
// It uses cosine similarity on the server and reports squared L2 distances,
// which for unit vectors equal 2 - 2*cosine.
type Storage struct {
	url        string
	apiKey     string
	base       string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		base:       cfg.Collection,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return "qdrant" }

// Scope points the store at a collection private to one build, named
// "<configured collection>-<buildID>".
func (s *Storage) Scope(buildID string) { s.collection = s.base + "-" + buildID }

// Collection is the collection the store currently reads and writes.
func (s *Storage) Collection() string { return s.collection }

// UseCollection points the store at an existing collection.
func (s *Storage) UseCollection(name string) { s.collection = name }

// Init creates the collection for vectors of the given size.
func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil)
}

func (s *Storage) Upsert(chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		if s.dimension > 0 && len(vectors[i]) != s.dimension {
			return domain.ErrDimensionMismatch
		}
		points[i] = map[string]any{
			"id":     PointID(ch.Metadata),
			"vector": vectors[i],
			"payload": map[string]any{
				"seq":      i,
				"source":   ch.Metadata.Source,
				"path":     ch.Metadata.Path,
				"page":     ch.Metadata.Page,
				"chunk_id": ch.Metadata.ChunkID,
				"text":     ch.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

func (s *Storage) Search(vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				Seq     int    `json:"seq"`
				Source  string `json:"source"`
				Path    string `json:"path"`
				Page    int    `json:"page"`
				ChunkID int    `json:"chunk_id"`
				Text    string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	type ranked struct {
		seq int
		res domain.SearchResult
	}
	rows := make([]ranked, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		rows = append(rows, ranked{seq: p.Seq, res: domain.SearchResult{
			Chunk: domain.Chunk{
				Text:     p.Text,
				Metadata: domain.ChunkMetadata{Source: p.Source, Path: p.Path, Page: p.Page, ChunkID: p.ChunkID},
			},
			Score: 2 - 2*r.Score,
		}})
	}
	// Server order is by score only; break ties by insertion sequence.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].res.Score != rows[j].res.Score {
			return rows[i].res.Score < rows[j].res.Score
		}
		return rows[i].seq < rows[j].seq
	})
	results := make([]domain.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = r.res
	}
	return results, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear() error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant DELETE collection %s failed: %s", s.collection, resp.Status)
	}
	return nil
}

// PointID derives a stable point id from chunk provenance. Qdrant only accepts
// unsigned integers or UUIDs as ids.
func PointID(md domain.ChunkMetadata) string {
	key := fmt.Sprintf("%s|%d|%d", md.Path, md.Page, md.ChunkID)
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func (s *Storage) do(method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
