package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packrag/internal/domain"
)

func chunk(text string, id int) domain.Chunk {
	return domain.Chunk{Text: text, Metadata: domain.ChunkMetadata{Source: "a.pdf", Page: 1, ChunkID: id}}
}

func TestInit_InvalidDimension(t *testing.T) {
	assert.Error(t, NewStorage().Init(0))
}

func TestUpsert_Validation(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(2))

	assert.Error(t, s.Upsert([]domain.Chunk{chunk("a", 0)}, nil))
	assert.ErrorIs(t, s.Upsert([]domain.Chunk{chunk("a", 0)}, [][]float64{{1, 0, 0}}), domain.ErrDimensionMismatch)
}

func TestSearch_OrdersByDistanceWithStableTies(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(2))
	require.NoError(t, s.Upsert(
		[]domain.Chunk{chunk("far", 0), chunk("tie-first", 1), chunk("near", 2), chunk("tie-second", 3)},
		[][]float64{{-1, 0}, {0, 1}, {1, 0}, {0, 1}},
	))

	res, err := s.Search([]float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 4)

	var texts []string
	for _, r := range res {
		texts = append(texts, r.Chunk.Text)
	}
	assert.Equal(t, []string{"near", "tie-first", "tie-second", "far"}, texts)
	assert.InDelta(t, 0.0, res[0].Score, 1e-12)
	assert.InDelta(t, 2.0, res[1].Score, 1e-12)
	assert.InDelta(t, 4.0, res[3].Score, 1e-12)
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestSearch_TopK(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(1))
	require.NoError(t, s.Upsert([]domain.Chunk{chunk("a", 0), chunk("b", 1), chunk("c", 2)}, [][]float64{{1}, {2}, {3}}))

	res, err := s.Search([]float64{0}, 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.Search([]float64{0}, 0)
	require.NoError(t, err)
	assert.Len(t, res, 3)

	_, err = s.Search([]float64{0, 0}, 2)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestExportAndClear(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(1))
	require.NoError(t, s.Upsert([]domain.Chunk{chunk("a", 0)}, [][]float64{{1}}))

	chunks, vectors := s.Export()
	vectors[0][0] = 42
	_, again := s.Export()
	assert.Equal(t, 1.0, again[0][0])
	assert.Len(t, chunks, 1)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())
}
