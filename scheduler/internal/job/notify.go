package job

import (
	"context"

	"yqhp/common/logger"
	"yqhp/scheduler/internal/notify"

	"go.uber.org/zap"
)

// Notify 通知投递：从事件队列取出事件写入站内通知，失败的事件放回队列
type Notify struct {
	*Deps
	source notify.Source
	store  *notify.NoticeStore
}

// NewNotify 创建通知投递任务
func NewNotify(d *Deps, source notify.Source, store *notify.NoticeStore) *Notify {
	return &Notify{Deps: d, source: source, store: store}
}

func (n *Notify) Name() string {
	return NameNotify
}

func (n *Notify) Run(ctx context.Context) (BatchReport, error) {
	events, err := n.source.Pop(ctx, JobSettings(n.Config, NameNotify).BatchSize)
	if err != nil {
		return newReport(NameNotify), err
	}

	done := make(map[int]bool, len(events))
	report := forEachRow(ctx, NameNotify, indexed(events), func(i int) int64 { return int64(i) },
		func(ctx context.Context, i int) RowResult {
			e := events[i]
			if len(e.Recipients) == 0 {
				done[i] = true
				return rowSkipped("无接收人")
			}
			if _, err := n.store.Deliver(ctx, e); err != nil {
				return rowFailed(err)
			}
			done[i] = true
			return rowOK()
		})

	var retry []notify.Event
	for i, e := range events {
		if !done[i] {
			retry = append(retry, e)
		}
	}
	if len(retry) > 0 {
		if err := n.source.Requeue(context.WithoutCancel(ctx), retry); err != nil {
			logger.Named(NameNotify).Error("事件放回队列失败", zap.Int("count", len(retry)), zap.Error(err))
		}
	}

	n.Metrics.AddRows(NameNotify, report.OK, report.Skipped, report.Failed)
	logReport(report)
	return report, nil
}

func indexed[T any](items []T) []int {
	idx := make([]int, len(items))
	for i := range items {
		idx[i] = i
	}
	return idx
}
