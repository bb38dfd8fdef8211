package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultRecentLimit is used by ListRecent when limit <= 0.
const DefaultRecentLimit = 10

// Result is a single web source attached to a record.
type Result struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	RawContent    *string `json:"rawContent,omitempty"`
	PublishedDate *string `json:"publishedDate,omitempty"`
}

// Record is one user query and, once the pipeline finishes, its answer and
// sources. Answer and Results are nil while the record is pending.
type Record struct {
	ID                 int64     `json:"id"`
	Query              string    `json:"query"`
	Answer             *string   `json:"answer"`
	Results            []Result  `json:"results"`
	CompletionDegraded bool      `json:"completionDegraded"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Pending reports whether the terminal update has not happened yet.
func (r Record) Pending() bool {
	return r.Answer == nil
}

// Outcome is the terminal update applied to a record: answer and results are
// always written together.
type Outcome struct {
	Answer   string
	Results  []Result
	Degraded bool
}

func cloneResults(in []Result) []Result {
	if in == nil {
		return nil
	}
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = r
		if r.RawContent != nil {
			v := *r.RawContent
			out[i].RawContent = &v
		}
		if r.PublishedDate != nil {
			v := *r.PublishedDate
			out[i].PublishedDate = &v
		}
	}
	return out
}

func cloneRecord(r Record) Record {
	out := r
	if r.Answer != nil {
		a := *r.Answer
		out.Answer = &a
	}
	out.Results = cloneResults(r.Results)
	return out
}
