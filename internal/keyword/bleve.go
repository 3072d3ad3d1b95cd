package keyword

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/pdfqa/internal/models"
)

const (
	fieldText  = "text"
	fieldDocID = "doc_id"
	fieldPage  = "page"
)

// BleveIndex implements ChunkIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming): exact words from the page match.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt(fieldText, textFieldMapping)
	chunkMapping.AddFieldMappingsAt(fieldDocID, bleve.NewKeywordFieldMapping())
	chunkMapping.AddFieldMappingsAt(fieldPage, bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = chunkMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds chunks in one batch. Chunks without an ID are skipped.
func (b *BleveIndex) Index(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		if ch == nil || ch.ID == "" {
			continue
		}
		doc := map[string]interface{}{
			fieldText:  ch.Text,
			fieldDocID: ch.DocID,
		}
		if ch.Page != nil {
			doc[fieldPage] = float64(*ch.Page)
		}
		if err := batch.Index(ch.ID, doc); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", ch.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search runs a match (or fuzzy) query on chunk text conjoined with a term query on doc_id.
func (b *BleveIndex) Search(ctx context.Context, docID, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if docID == "" || limit <= 0 || len(tokenizeQuery(query)) == 0 {
		return nil, nil
	}
	fuzzyEnabled := false
	fuzziness := 1
	if opts != nil {
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var textQuery blevequery.Query
	if fuzzyEnabled {
		textQuery = buildFuzzyQuery(query, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(fieldText)
		textQuery = mq
	}
	docQuery := bleve.NewTermQuery(docID)
	docQuery.SetField(fieldDocID)

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(textQuery, docQuery))
	req.Size = limit
	req.Fields = []string{fieldText, fieldDocID, fieldPage}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		text, _ := hit.Fields[fieldText].(string)
		if hitDoc, _ := hit.Fields[fieldDocID].(string); hitDoc != docID || text == "" {
			continue
		}
		r := &KeywordResult{ID: hit.ID, Text: text, Score: hit.Score}
		if f, ok := hit.Fields[fieldPage].(float64); ok && f == math.Trunc(f) && f >= 1 {
			n := int(f)
			r.Page = &n
		}
		out = append(out, r)
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries on the text field, one per query term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		term = strings.Trim(term, ".,;:!?\"'()[]")
		if term == "" {
			continue
		}
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(fieldText)
		queries = append(queries, fq)
	}
	if len(queries) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(fieldText)
		return mq
	}
	// any term can match
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the total number of chunks in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
