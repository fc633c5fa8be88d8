package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

func TestBuildCrossReferenceIndex_MapsColumnsToFiles(t *testing.T) {
	files := []domain.AnalyzedFile{
		{Path: "payments.csv", Columns: []string{"issuing_country", "amount"}},
		{Path: "merchants.csv", Columns: []string{"issuing_country"}},
	}

	index := BuildCrossReferenceIndex(nil, files)

	assert.ElementsMatch(t, []string{"payments.csv", "merchants.csv"}, index["issuing_country"])
	assert.ElementsMatch(t, []string{"payments.csv"}, index["amount"])
}

func TestBuildCrossReferenceIndex_ExtendsWithMatchingDocuments(t *testing.T) {
	files := []domain.AnalyzedFile{{Path: "payments.csv", Columns: []string{"issuing_country"}}}
	docs := []domain.NormalizedDocument{
		{ID: "doc-1", Title: "glossary", Content: "issuing_country is the card issuer's country code"},
		{ID: "doc-2", Title: "unrelated", Content: "nothing relevant here"},
	}

	index := BuildCrossReferenceIndex(docs, files)

	assert.ElementsMatch(t, []string{"payments.csv", "doc-1"}, index["issuing_country"])
}

func TestBuildCrossReferenceIndex_DeduplicatesReferences(t *testing.T) {
	files := []domain.AnalyzedFile{
		{Path: "payments.csv", Columns: []string{"issuing_country"}},
		{Path: "payments.csv", Columns: []string{"issuing_country"}},
	}

	index := BuildCrossReferenceIndex(nil, files)
	assert.Equal(t, []string{"payments.csv"}, index["issuing_country"])
}

func TestBuildCrossReferenceIndex_EmptyInputsProduceEmptyIndex(t *testing.T) {
	index := BuildCrossReferenceIndex(nil, nil)
	assert.Empty(t, index)
}
