package engine

import (
	"context"

	"github.com/pavelanni/examgen/internal/model"
)

// ListSubmissions returns all results of an exam, most recent first.
func (e *Engine) ListSubmissions(ctx context.Context, examID string, actor model.Actor) ([]model.Result, error) {
	const op = "list submissions"
	exam, err := e.store.GetExam(ctx, examID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if err := requireCreator(op, exam, actor); err != nil {
		return nil, err
	}
	results, err := e.store.ListResults(ctx, examID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return results, nil
}

// ListAllSubmissions returns the results of every exam actor created.
func (e *Engine) ListAllSubmissions(ctx context.Context, actor model.Actor) ([]model.Result, error) {
	results, err := e.store.ListResultsByCreator(ctx, actor.ID)
	if err != nil {
		return nil, storeErr("list all submissions", err)
	}
	return results, nil
}
