package core

import "fmt"

// newReport creates an empty report for a batch of total records.
func newReport(batchID, entity string, total, chunkSize int) *BatchReport {
	return &BatchReport{
		BatchID:   batchID,
		Entity:    entity,
		Total:     total,
		ChunkSize: chunkSize,
		Results:   make([]ApplyResult, 0, total),
	}
}

// merge appends one chunk's results. Results already carry their index in
// the original batch.
func (r *BatchReport) merge(results []ApplyResult) {
	r.Chunks++
	for _, res := range results {
		r.add(res)
	}
}

func (r *BatchReport) add(res ApplyResult) {
	r.Results = append(r.Results, res)
	switch res.Action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionDeleted:
		r.Deleted++
	case ActionSkipped:
		r.Skipped++
	case ActionFailed:
		r.Failed++
		r.Errors = append(r.Errors, applyErrorFor(res))
	}
}

func applyErrorFor(res ApplyResult) ApplyError {
	ae := ApplyError{
		Index:      res.Index,
		Error:      res.Error,
		ErrorType:  KindUnknown.String(),
		Source:     KindUnknown.Source(),
		Constraint: res.Constraint,
		Data:       res.Record,
	}
	if se := res.err; se != nil {
		ae.ErrorType = se.Kind.String()
		ae.Source = se.Kind.Source()
		ae.ErrorCode = se.Code
		if ae.Constraint == "" {
			ae.Constraint = se.Constraint
		}
	}
	if res.Reason == ReasonChunkAborted {
		ae.ErrorType = ReasonChunkAborted
	}
	return ae
}

// finalize computes the derived fields once every chunk has been merged.
func (r *BatchReport) finalize() {
	r.Processed = r.Created + r.Updated + r.Deleted + r.Skipped
	r.Success = r.Failed == 0

	if r.Chunks > 1 {
		r.Message = fmt.Sprintf("Batched processing complete: %d succeeded (%d created, %d updated, %d skipped, %d deleted), %d failed across %d batches",
			r.Processed, r.Created, r.Updated, r.Skipped, r.Deleted, r.Failed, r.Chunks)
		return
	}
	r.Message = fmt.Sprintf("Processing complete: %d succeeded (%d created, %d updated, %d skipped, %d deleted), %d failed",
		r.Processed, r.Created, r.Updated, r.Skipped, r.Deleted, r.Failed)
}

// Applied returns the records that changed the store, in input order.
func (r *BatchReport) Applied() []*Record {
	var out []*Record
	for _, res := range r.Results {
		if res.Applied() && res.Record != nil {
			out = append(out, res.Record)
		}
	}
	return out
}
