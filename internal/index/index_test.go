package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packrag/internal/domain"
	"packrag/internal/embedding/tfidf"
	"packrag/internal/vectorstore/memory"
)

func sampleChunks() []domain.Chunk {
	mk := func(text, source string, page, id int) domain.Chunk {
		return domain.Chunk{Text: text, Metadata: domain.ChunkMetadata{Source: source, Path: "/packs/" + source, Page: page, ChunkID: id}}
	}
	return []domain.Chunk{
		mk("Claim Reference: CLM-ABC-123456 Policy Number: POL-778899", "alpha.pdf", 1, 0),
		mk("Incident Date: 14/03/2024 Incident Time: 08:45 collision at junction", "alpha.pdf", 2, 0),
		mk("Hire Charges: £2,450.00 for replacement vehicle", "beta.pdf", 1, 0),
		mk("Reported Injuries • whiplash to neck • bruised shoulder", "beta.pdf", 3, 0),
	}
}

func build(t *testing.T) *Index {
	t.Helper()
	idx, err := Build(sampleChunks(), tfidf.NewEmbedder(), memory.NewStorage())
	require.NoError(t, err)
	return idx
}

func TestBuild(t *testing.T) {
	idx := build(t)
	assert.Equal(t, 4, idx.Len())
	assert.NotEmpty(t, idx.ID())
	assert.False(t, idx.BuiltAt().IsZero())
	assert.Greater(t, idx.Dimension(), 0)
	assert.Equal(t, "tfidf", idx.EmbedderName())
	assert.Equal(t, []string{"alpha.pdf", "beta.pdf"}, idx.Sources())
}

func TestBuild_NoChunks(t *testing.T) {
	_, err := Build(nil, tfidf.NewEmbedder(), memory.NewStorage())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestQuery_RanksRelevantChunkFirst(t *testing.T) {
	idx := build(t)
	res, err := idx.Query("what are the hire charges", 4)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "beta.pdf", res[0].Chunk.Metadata.Source)
	assert.Equal(t, 1, res[0].Chunk.Metadata.Page)
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestQuery_LexicalFallbackForUnknownTerms(t *testing.T) {
	idx := build(t)
	res, err := idx.Query("zzz qqq", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	// No overlap anywhere: every distance is 1 and insertion order is kept.
	assert.InDelta(t, 1.0, res[0].Score, 1e-12)
	assert.Equal(t, sampleChunks()[0].Text, res[0].Chunk.Text)
	assert.Equal(t, sampleChunks()[1].Text, res[1].Chunk.Text)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := build(t)
	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, idx.Save(dir))
	assert.FileExists(t, filepath.Join(dir, DataFile))

	loaded, err := Load(dir, tfidf.NewEmbedder(), memory.NewStorage())
	require.NoError(t, err)
	assert.Equal(t, idx.ID(), loaded.ID())
	assert.True(t, idx.BuiltAt().Equal(loaded.BuiltAt()))
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Dimension(), loaded.Dimension())

	for _, q := range []string{"claim reference", "incident time", "injuries whiplash"} {
		want, err := idx.Query(q, 3)
		require.NoError(t, err)
		got, err := loaded.Query(q, 3)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Chunk, got[i].Chunk, q)
			assert.InDelta(t, want[i].Score, got[i].Score, 1e-9, q)
		}
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"), tfidf.NewEmbedder(), memory.NewStorage())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, domain.ErrIndexMissing)

	_, err = Load(t.TempDir(), tfidf.NewEmbedder(), memory.NewStorage())
	assert.ErrorIs(t, err, domain.ErrIndexMissing)
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DataFile), []byte("not a gob stream"), 0o644))
	_, err := Load(dir, tfidf.NewEmbedder(), memory.NewStorage())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, dir, le.Dir)
	assert.ErrorIs(t, err, domain.ErrIndexCorrupt)
}

// fixedEmbedder produces vectors of a fixed size without any state.
type fixedEmbedder struct {
	name string
	dim  int
}

func (f fixedEmbedder) Name() string           { return f.name }
func (f fixedEmbedder) Prepare([]string) error { return nil }
func (f fixedEmbedder) Dimension() int         { return f.dim }
func (f fixedEmbedder) Embed(text string) ([]float64, error) {
	v := make([]float64, f.dim)
	v[len(text)%f.dim] = 1
	return v, nil
}

func TestLoad_DimensionMismatch(t *testing.T) {
	idx, err := Build(sampleChunks(), fixedEmbedder{name: "fixed", dim: 4}, memory.NewStorage())
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, idx.Save(dir))

	_, err = Load(dir, fixedEmbedder{name: "fixed", dim: 8}, memory.NewStorage())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = Load(dir, fixedEmbedder{name: "other", dim: 4}, memory.NewStorage())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = Load(dir, fixedEmbedder{name: "fixed", dim: 4}, memory.NewStorage())
	assert.NoError(t, err)
}

func TestOverlapOchiai(t *testing.T) {
	q := TokenSet("hire charges")
	assert.InDelta(t, 1.0, overlapOchiai(q, "Hire charges"), 1e-12)
	assert.InDelta(t, 0.0, overlapOchiai(q, "policy number"), 1e-12)
	assert.InDelta(t, 1/2.0, overlapOchiai(q, "hire vehicle"), 1e-12)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"claimant’s", "vehicle", "reg", "ab", "12", "total", "1", "200"},
		Tokens("Claimant’s vehicle REG AB12, total £1,200"))
	assert.Len(t, TokenSet("policy Policy POLICY number"), 2)
}
