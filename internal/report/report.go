// Package report summarizes and exports sealed run reports.
package report

import (
	"sort"
	"strings"

	"route-pipeline/internal/model"
)

// Reason is a rejection reason and how often it occurred.
type Reason struct {
	Kind    model.ErrorKind `json:"kind"`
	Field   string          `json:"field,omitempty"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
}

// TypeTotals aggregates results of one collector type.
type TypeTotals struct {
	Type       model.CollectorType `json:"type"`
	Collectors int                 `json:"collectors"`
	Fetched    int                 `json:"fetched"`
	Accepted   int                 `json:"accepted"`
	Rejected   int                 `json:"rejected"`
	Duplicates int                 `json:"duplicates"`
}

// Summary is the human-facing digest of a run.
type Summary struct {
	RunID      string                 `json:"run_id"`
	Status     model.CollectionStatus `json:"status"`
	Totals     model.RunSummary       `json:"totals"`
	SuccessPct float64                `json:"success_pct"` // accepted / fetched
	ByType     []TypeTotals           `json:"by_type"`
	TopReasons []Reason               `json:"top_reasons"`
	Failed     []string               `json:"failed_collectors"`
}

// Summarize builds the digest of r, keeping the top n rejection reasons.
func Summarize(r *model.RunReport, n int) Summary {
	s := Summary{
		RunID:      r.RunID,
		Status:     r.Status,
		Totals:     r.Summary,
		TopReasons: TopRejectionReasons(r, n),
		Failed:     []string{},
	}
	if r.Summary.RecordsFetched > 0 {
		s.SuccessPct = 100 * float64(r.Summary.RecordsAccepted) / float64(r.Summary.RecordsFetched)
	}

	byType := make(map[model.CollectorType]*TypeTotals)
	for _, res := range r.Results {
		if res.Status == model.StatusFailed {
			s.Failed = append(s.Failed, res.CollectorName)
		}
		t, ok := byType[res.CollectorType]
		if !ok {
			t = &TypeTotals{Type: res.CollectorType}
			byType[res.CollectorType] = t
		}
		t.Collectors++
		t.Fetched += res.RecordsFetched
		t.Accepted += res.RecordsAccepted
		t.Rejected += res.RecordsRejected
		t.Duplicates += res.DuplicatesSkipped
	}
	for _, t := range byType {
		s.ByType = append(s.ByType, *t)
	}
	sort.Slice(s.ByType, func(i, j int) bool { return s.ByType[i].Type < s.ByType[j].Type })
	return s
}

// TopRejectionReasons ranks record-level rejections by frequency. Messages
// are grouped per kind and field; ties break on the message text. n <= 0 keeps all.
func TopRejectionReasons(r *model.RunReport, n int) []Reason {
	counts := make(map[string]*Reason)
	for _, res := range r.Results {
		for _, e := range res.Errors {
			if e.RecordIndex < 0 {
				continue
			}
			key := string(e.Kind) + "\x00" + e.Field + "\x00" + e.Message
			if c, ok := counts[key]; ok {
				c.Count++
				continue
			}
			counts[key] = &Reason{Kind: e.Kind, Field: e.Field, Message: e.Message, Count: 1}
		}
	}

	out := make([]Reason, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.Compare(out[i].Message, out[j].Message) < 0
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
