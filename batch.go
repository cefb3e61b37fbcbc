package main

import (
	"context"

	log "github.com/sirupsen/logrus"
)

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailure Status = "Failure"
)

// OperationResult is the outcome of one batch element. Reason is empty on success.
type OperationResult struct {
	Identifier string
	Status     Status
	Reason     string
}

func succeeded(id string) OperationResult {
	return OperationResult{Identifier: id, Status: StatusSuccess}
}

func failed(id string, err error) OperationResult {
	return OperationResult{Identifier: id, Status: StatusFailure, Reason: errorMessage(err)}
}

// Outcome pairs a batch input with what the remote call produced for it.
type Outcome[In, Out any] struct {
	Input  In
	Output Out
	Result OperationResult
}

// Summary counts the results of a finished batch.
type Summary struct {
	Total  int
	Failed int
}

// RunBatch applies op to every item in order, calling it exactly once per
// item. A failing item is recorded and the batch moves on. observe, when not
// nil, sees every result as soon as it is known. Once ctx is done the
// remaining items are recorded as failures without calling op.
func RunBatch[In, Out any](
	ctx context.Context,
	name string,
	items []In,
	key func(In) string,
	op func(context.Context, In) (Out, error),
	observe func(seq int, r OperationResult),
) ([]Outcome[In, Out], Summary) {
	outcomes := make([]Outcome[In, Out], 0, len(items))
	summary := Summary{Total: len(items)}

	for i, item := range items {
		id := key(item)
		outcome := Outcome[In, Out]{Input: item}

		var err error
		if err = ctx.Err(); err == nil {
			outcome.Output, err = op(ctx, item)
		}
		if err != nil {
			outcome.Result = failed(id, err)
			summary.Failed++
			log.WithFields(log.Fields{"operation": name, "item": id}).Warnf("failed: %s", outcome.Result.Reason)
		} else {
			outcome.Result = succeeded(id)
			log.WithFields(log.Fields{"operation": name, "item": id}).Debug("succeeded")
		}

		if observe != nil {
			observe(i, outcome.Result)
		}
		outcomes = append(outcomes, outcome)
	}

	log.Infof("Remark: %s finished: %d processed, %d failed.", name, summary.Total, summary.Failed)
	return outcomes, summary
}
