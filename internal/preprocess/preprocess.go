// Package preprocess implements the Document Normalizer and File Analyzer
// preprocessors: one-shot transforms applied once per task before the
// control loop starts. Nothing is cached: every call recomputes its output
// from its inputs. Grounded on the original benchmark's
// _normalize_documents_once / _pre_analyze_files_once methods.
package preprocess

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// NormalizeDocuments converts raw (id, title, content) triples into
// NormalizedDocument values, trimming whitespace and collapsing repeated
// blank lines the way free-text context documents accumulate noise across
// sources.
func NormalizeDocuments(raw []RawDocument) []domain.NormalizedDocument {
	out := make([]domain.NormalizedDocument, 0, len(raw))
	for _, r := range raw {
		out = append(out, domain.NormalizedDocument{
			ID:      r.ID,
			Title:   strings.TrimSpace(r.Title),
			Content: collapseBlankLines(r.Content),
		})
	}
	return out
}

// RawDocument is the unprocessed input to NormalizeDocuments.
type RawDocument struct {
	ID      string
	Title   string
	Content string
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, l := range lines {
		trimmed := strings.TrimRight(l, " \t")
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// AnalyzeFiles produces a lightweight structural summary for each path —
// never the full file content — so agent prompts stay small regardless of
// dataset size.
func AnalyzeFiles(paths []string) ([]domain.AnalyzedFile, error) {
	out := make([]domain.AnalyzedFile, 0, len(paths))
	for _, p := range paths {
		f, err := analyzeOne(p)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func analyzeOne(path string) (domain.AnalyzedFile, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return analyzeCSV(path)
	case ".json":
		return analyzeJSON(path)
	default:
		return analyzeText(path)
	}
}

func analyzeCSV(path string) (domain.AnalyzedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.AnalyzedFile{}, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return domain.AnalyzedFile{Path: path, Kind: "csv"}, nil
	}

	rowCount := 0
	var previewRows []string
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rowCount++
		if len(previewRows) < 3 {
			previewRows = append(previewRows, strings.Join(record, ","))
		}
	}

	return domain.AnalyzedFile{
		Path:     path,
		Kind:     "csv",
		Columns:  header,
		RowCount: rowCount,
		Preview:  strings.Join(previewRows, "\n"),
	}, nil
}

func analyzeJSON(path string) (domain.AnalyzedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.AnalyzedFile{}, err
	}
	defer f.Close()

	var payload interface{}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&payload); err != nil {
		return domain.AnalyzedFile{Path: path, Kind: "json"}, nil
	}

	columns, rowCount := jsonShape(payload)
	return domain.AnalyzedFile{
		Path:     path,
		Kind:     "json",
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// BuildCrossReferenceIndex computes the Document Normalizer's
// entity→files index (spec.md §3.1, §4.9): every AnalyzedFile's column
// name is an entity, mapped to the file(s) that carry it plus any
// NormalizedDocument whose content mentions it, so the Planner/Coder can
// go from a term in the question straight to the files/documents that
// carry it instead of scanning the whole bundle in turn.
func BuildCrossReferenceIndex(docs []domain.NormalizedDocument, files []domain.AnalyzedFile) map[string][]string {
	index := make(map[string][]string)

	for _, f := range files {
		for _, col := range f.Columns {
			index[col] = appendUnique(index[col], f.Path)
		}
	}

	for entity, refs := range index {
		lower := strings.ToLower(entity)
		for _, d := range docs {
			if strings.Contains(strings.ToLower(d.Content), lower) || strings.Contains(strings.ToLower(d.Title), lower) {
				refs = appendUnique(refs, d.ID)
			}
		}
		index[entity] = refs
	}

	return index
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func jsonShape(payload interface{}) ([]string, int) {
	switch v := payload.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil, 0
		}
		if obj, ok := v[0].(map[string]interface{}); ok {
			cols := make([]string, 0, len(obj))
			for k := range obj {
				cols = append(cols, k)
			}
			return cols, len(v)
		}
		return nil, len(v)
	case map[string]interface{}:
		cols := make([]string, 0, len(v))
		for k := range v {
			cols = append(cols, k)
		}
		return cols, 1
	default:
		return nil, 0
	}
}

func analyzeText(path string) (domain.AnalyzedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.AnalyzedFile{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	rowCount := 0
	for scanner.Scan() {
		rowCount++
		if len(lines) < 5 {
			lines = append(lines, scanner.Text())
		}
	}

	return domain.AnalyzedFile{
		Path:     path,
		Kind:     "text",
		RowCount: rowCount,
		Preview:  strings.Join(lines, "\n"),
	}, nil
}
