package job

import (
	"context"
	"fmt"

	"yqhp/common/logger"
	"yqhp/common/utils"

	"go.uber.org/zap"
)

// Outcome 单行处理结果
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// RowResult 单行处理结果及原因
type RowResult struct {
	Outcome Outcome
	Reason  string
	Err     error
}

func rowOK() RowResult {
	return RowResult{Outcome: OutcomeOK}
}

func rowSkipped(reason string) RowResult {
	return RowResult{Outcome: OutcomeSkipped, Reason: reason}
}

func rowFailed(err error) RowResult {
	return RowResult{Outcome: OutcomeFailed, Err: err}
}

// BatchReport 一次批处理的汇总
type BatchReport struct {
	Job     string
	Total   int
	OK      int
	Skipped int
	Failed  int
	// Errors 失败行 ID 到错误
	Errors map[int64]error
}

func newReport(job string) BatchReport {
	return BatchReport{Job: job, Errors: make(map[int64]error)}
}

func (r *BatchReport) add(id int64, res RowResult) {
	r.Total++
	switch res.Outcome {
	case OutcomeOK:
		r.OK++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
		r.Errors[id] = res.Err
	}
}

// Merge 合并另一份报告
func (r *BatchReport) Merge(o BatchReport) {
	r.Total += o.Total
	r.OK += o.OK
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	for id, err := range o.Errors {
		r.Errors[id] = err
	}
}

// forEachRow 逐行处理，单行的错误和 panic 不影响后续行；上下文结束后剩余行记为跳过
func forEachRow[T any](ctx context.Context, job string, rows []T, idOf func(T) int64, fn func(context.Context, T) RowResult) BatchReport {
	report := newReport(job)
	log := logger.Named(job)
	for i, row := range rows {
		id := idOf(row)
		if err := ctx.Err(); err != nil {
			log.Warn("任务上下文已结束，剩余行留待下个周期", zap.Int("remaining", len(rows)-i), zap.Error(err))
			for _, rest := range rows[i:] {
				report.add(idOf(rest), rowSkipped("context done"))
			}
			break
		}

		res := runRow(ctx, row, fn)
		report.add(id, res)
		switch res.Outcome {
		case OutcomeFailed:
			log.Warn("行处理失败", zap.Int64("id", id), zap.Error(res.Err))
		case OutcomeSkipped:
			if res.Reason != "" {
				log.Debug("行已跳过", zap.Int64("id", id), zap.String("reason", res.Reason))
			}
		}
	}
	return report
}

func runRow[T any](ctx context.Context, row T, fn func(context.Context, T) RowResult) (res RowResult) {
	defer utils.Recover("row", func(p any) {
		res = rowFailed(fmt.Errorf("panic: %v", p))
	})
	return fn(ctx, row)
}
