package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyalabs/vidya/engine/structure"
)

func TestNewSplitter(t *testing.T) {
	t.Run("ShouldRejectNonPositiveSize", func(t *testing.T) {
		_, err := NewSplitter(Settings{Size: 0})
		require.Error(t, err)
	})
	t.Run("ShouldRejectOverlapNotSmallerThanSize", func(t *testing.T) {
		_, err := NewSplitter(Settings{Size: 10, Overlap: 10})
		require.Error(t, err)
	})
	t.Run("ShouldRejectNegativeOverlap", func(t *testing.T) {
		_, err := NewSplitter(Settings{Size: 10, Overlap: -1})
		require.Error(t, err)
	})
}

func TestSplitterSplit(t *testing.T) {
	detector := structure.NewRegexDetector()
	text := "Chapter 1: Algebra\n" +
		strings.Repeat("Solving equations with one unknown takes practice. ", 4) + "\n" +
		"Unit 1: Linear Equations\n" +
		strings.Repeat("A linear equation has degree one. ", 4) + "\n" +
		"Chapter 2: Geometry\n" +
		strings.Repeat("Triangles have three sides and three angles. ", 4) + "\n"

	t.Run("ShouldProduceContiguousIndexesFromZero", func(t *testing.T) {
		splitter, err := NewSplitter(Settings{Size: 120, Overlap: 20})
		require.NoError(t, err)
		chunks, err := splitter.Split(text, detector.Detect(text))
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.NotEmpty(t, c.Text)
		}
	})
	t.Run("ShouldBeDeterministicAcrossRuns", func(t *testing.T) {
		splitter, err := NewSplitter(Settings{Size: 120, Overlap: 20})
		require.NoError(t, err)
		first, err := splitter.Split(text, detector.Detect(text))
		require.NoError(t, err)
		second, err := splitter.Split(text, detector.Detect(text))
		require.NoError(t, err)
		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].Text, second[i].Text)
			assert.Equal(t, first[i].Chapter, second[i].Chapter)
			assert.Equal(t, first[i].Unit, second[i].Unit)
		}
	})
	t.Run("ShouldAttributeChunksToPrecedingMarkers", func(t *testing.T) {
		splitter, err := NewSplitter(Settings{Size: 120, Overlap: 20})
		require.NoError(t, err)
		chunks, err := splitter.Split(text, detector.Detect(text))
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		require.NotNil(t, chunks[0].Chapter)
		assert.Equal(t, "Algebra", chunks[0].Chapter.Title)
		assert.Nil(t, chunks[0].Unit)

		last := chunks[len(chunks)-1]
		require.NotNil(t, last.Chapter)
		assert.Equal(t, "Geometry", last.Chapter.Title)
		require.NotNil(t, last.Unit)
		assert.Equal(t, "Linear Equations", last.Unit.Title)
	})
	t.Run("ShouldKeepAttributionMonotonicInChunkIndex", func(t *testing.T) {
		splitter, err := NewSplitter(Settings{Size: 100, Overlap: 10})
		require.NoError(t, err)
		chunks, err := splitter.Split(text, detector.Detect(text))
		require.NoError(t, err)
		prevLine := -1
		for _, c := range chunks {
			if c.Chapter == nil {
				continue
			}
			assert.GreaterOrEqual(t, c.Chapter.LineIndex, prevLine)
			prevLine = c.Chapter.LineIndex
		}
	})
	t.Run("ShouldReturnNoChunksForWhitespaceText", func(t *testing.T) {
		splitter, err := NewSplitter(Settings{Size: 100, Overlap: 10})
		require.NoError(t, err)
		chunks, err := splitter.Split("   \n\n  ", nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
	t.Run("ShouldHandleTextWithoutMarkers", func(t *testing.T) {
		splitter, err := NewSplitter(Settings{Size: 50, Overlap: 5})
		require.NoError(t, err)
		plain := strings.Repeat("Plain prose without any headings in it. ", 6)
		chunks, err := splitter.Split(plain, detector.Detect(plain))
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.Nil(t, c.Chapter)
			assert.Nil(t, c.Unit)
		}
	})
}
