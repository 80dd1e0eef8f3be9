package domain

import (
	"github.com/skein-run/skein/pkg/utils/cmp"
	"github.com/skein-run/skein/pkg/utils/slices"
)

// Progress counts a run's child jobs per status.
//
// Buckets are monotonic. A job id, once counted, is never counted
// twice and never removed (except implicitly through restart, which
// rewrites the whole Progress).
type Progress struct {
	Running  ProgressBucket `json:"running"`
	Finished ProgressBucket `json:"finished"`
	Failed   ProgressBucket `json:"failed"`

	// Total is how many jobs the planner expects overall. The planner
	// may emit it once up front while the other buckets stream in
	// afterwards, so the first non-empty value wins and is never
	// recomputed from later events.
	Total ProgressBucket `json:"total"`
}

type ProgressBucket struct {
	JobIds []string `json:"job_ids,omitempty"`
	Total  int      `json:"total"`
}

func (b ProgressBucket) Equal(o ProgressBucket) bool {
	return b.Total == o.Total && cmp.SliceContentEq(b.JobIds, o.JobIds)
}

func (p Progress) Equal(o Progress) bool {
	return p.Running.Equal(o.Running) &&
		p.Finished.Equal(o.Finished) &&
		p.Failed.Equal(o.Failed) &&
		p.Total.Equal(o.Total)
}

// Merge folds a progress delta from a status event into p and returns
// the result.
//
// Per-status buckets take the set union of job ids (nulls dropped) and
// recount totals as set cardinality, so applying the same delta twice
// changes nothing. Total obeys first-non-empty-wins.
func (p Progress) Merge(delta Progress) Progress {
	merged := Progress{
		Running:  mergeBucket(p.Running, delta.Running),
		Finished: mergeBucket(p.Finished, delta.Finished),
		Failed:   mergeBucket(p.Failed, delta.Failed),
		Total:    p.Total,
	}
	if p.Total.Total == 0 {
		merged.Total = delta.Total
	}
	return merged
}

func mergeBucket(prev, delta ProgressBucket) ProgressBucket {
	if len(delta.JobIds) == 0 && delta.Total == 0 {
		return prev
	}

	seen := map[string]bool{}
	union := []string{}
	for _, id := range slices.Concat(prev.JobIds, delta.JobIds) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		union = append(union, id)
	}
	return ProgressBucket{JobIds: union, Total: len(union)}
}
