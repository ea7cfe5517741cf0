package job

import (
	"context"

	"yqhp/scheduler/internal/model"
)

// Reclaim 节点回收：删除终态执行和孤儿关联占用的节点
type Reclaim struct {
	*Deps
}

// NewReclaim 创建节点回收任务
func NewReclaim(d *Deps) *Reclaim {
	return &Reclaim{Deps: d}
}

func (r *Reclaim) Name() string {
	return NameReclaim
}

func (r *Reclaim) Run(ctx context.Context) (BatchReport, error) {
	report := newReport(NameReclaim)
	batch := JobSettings(r.Config, NameReclaim).BatchSize

	finished, err := r.Nodes.FinishedWithAssociations(ctx, batch)
	if err != nil {
		return report, err
	}
	report.Merge(forEachRow(ctx, NameReclaim, finished, func(id int64) int64 { return id },
		func(ctx context.Context, id int64) RowResult {
			if _, err := r.Nodes.DeleteAssociationsByExecution(ctx, id); err != nil {
				return rowFailed(err)
			}
			return rowOK()
		}))

	orphans, err := r.Nodes.OrphanAssociations(ctx, batch)
	if err != nil {
		return report, err
	}
	report.Merge(forEachRow(ctx, NameReclaim, orphans, func(a *model.TExecutionNode) int64 { return a.ID },
		func(ctx context.Context, a *model.TExecutionNode) RowResult {
			n, err := r.Nodes.DeleteAssociations(ctx, []int64{a.ID})
			if err != nil {
				return rowFailed(err)
			}
			if n == 0 {
				return rowSkipped("已删除")
			}
			return rowOK()
		}))

	r.Metrics.AddRows(NameReclaim, report.OK, report.Skipped, report.Failed)
	logReport(report)
	return report, nil
}
