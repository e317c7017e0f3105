package index

import (
	"fmt"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// AnalyzerName is the analyzer applied to document content and query
	// terms alike.
	AnalyzerName = "docsearch_text"

	// TermsFilterName drops short tokens and stop words.
	TermsFilterName = "docsearch_terms"

	minTermLength = 2

	fieldKey     = "key"
	fieldContent = "content"
)

// stopWords is a short English stop list. Stop words are neither indexed nor
// matched.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "can": {}, "for": {}, "from": {}, "have": {},
	"if": {}, "in": {}, "is": {}, "it": {}, "may": {}, "not": {},
	"of": {}, "on": {}, "or": {}, "tbd": {}, "that": {}, "the": {},
	"this": {}, "to": {}, "us": {}, "we": {}, "when": {}, "will": {},
	"with": {}, "yet": {}, "you": {}, "your": {},
}

func init() {
	if err := registry.RegisterTokenFilter(TermsFilterName, termsFilterConstructor); err != nil {
		panic(err)
	}
}

type termsFilter struct {
	minLength int
	stop      map[string]struct{}
}

func termsFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	minLength := minTermLength
	if v, ok := config["min_length"].(float64); ok {
		minLength = int(v)
	}
	return &termsFilter{minLength: minLength, stop: stopWords}, nil
}

func (f *termsFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := input[:0]
	for _, tok := range input {
		if utf8.RuneCount(tok.Term) < f.minLength {
			continue
		}
		if _, stop := f.stop[string(tok.Term)]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// newMapping describes one document per key: the key itself as a stored
// keyword and the content as analyzed, unstored text.
func newMapping() (*mapping.IndexMappingImpl, error) {
	im := mapping.NewIndexMapping()
	err := im.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			TermsFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("adding analyzer %s: %w", AnalyzerName, err)
	}

	keyField := mapping.NewKeywordFieldMapping()
	keyField.Store = true
	keyField.IncludeInAll = false

	contentField := mapping.NewTextFieldMapping()
	contentField.Analyzer = AnalyzerName
	contentField.Store = false
	contentField.IncludeTermVectors = false
	contentField.IncludeInAll = false

	doc := mapping.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldKey, keyField)
	doc.AddFieldMappingsAt(fieldContent, contentField)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = AnalyzerName
	im.StoreDynamic = false
	im.IndexDynamic = false
	return im, nil
}
