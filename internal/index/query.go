package index

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

type Operator int

const (
	OpOR Operator = iota
	OpAND
)

func (o Operator) String() string {
	if o == OpAND {
		return "AND"
	}
	return "OR"
}

// QueryPlan is a parsed free-text query.
type QueryPlan struct {
	Terms        []string
	ExcludeTerms []string
	Operator     Operator
	RawQuery     string
}

// ParseQuery splits a query on whitespace. Terms match any-of by default;
// the uppercase words AND and OR switch the operator for the whole query
// and NOT excludes the term that follows it. Lowercase "and", "or" and "not"
// are ordinary terms, which the analyzer drops as stopwords. Terms are kept
// as typed; the index analyzer normalizes them when the query runs.
func ParseQuery(raw string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Operator:     OpOR,
		RawQuery:     raw,
	}
	excludeNext := false
	for _, word := range strings.Fields(raw) {
		switch word {
		case "AND":
			plan.Operator = OpAND
			continue
		case "OR":
			plan.Operator = OpOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, word)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, word)
		}
	}
	return plan
}

// buildQuery turns a plan into a bleve query over the content field, or nil
// when no term survives analysis.
func (ix *Index) buildQuery(plan *QueryPlan) query.Query {
	must := ix.termQueries(plan.Terms)
	if len(must) == 0 {
		return nil
	}

	var q query.Query
	switch {
	case len(must) == 1:
		q = must[0]
	case plan.Operator == OpAND:
		q = bleve.NewConjunctionQuery(must...)
	default:
		q = bleve.NewDisjunctionQuery(must...)
	}

	exclude := ix.termQueries(plan.ExcludeTerms)
	if len(exclude) == 0 {
		return q
	}
	bq := bleve.NewBooleanQuery()
	bq.AddMust(q)
	bq.AddMustNot(exclude...)
	return bq
}

func (ix *Index) termQueries(words []string) []query.Query {
	out := make([]query.Query, 0, len(words))
	for _, w := range words {
		if len(ix.analyzer.Analyze([]byte(w))) == 0 {
			continue
		}
		mq := bleve.NewMatchQuery(w)
		mq.SetField(fieldContent)
		mq.Analyzer = AnalyzerName
		out = append(out, mq)
	}
	return out
}
