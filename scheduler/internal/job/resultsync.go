package job

import (
	"context"
	"fmt"

	"yqhp/common/logger"
	"yqhp/common/utils"
	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/repo"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const stuckLogLimit = 20

// ResultAggregator 将执行的采样固化为结果
type ResultAggregator interface {
	Materialize(ctx context.Context, e *model.TExecution) error
}

// SampleSummaryAggregator 汇总采样写入 t_execution_result，重复执行覆盖
type SampleSummaryAggregator struct {
	db *gorm.DB
}

// NewSampleSummaryAggregator 创建采样汇总器
func NewSampleSummaryAggregator(db *gorm.DB) *SampleSummaryAggregator {
	return &SampleSummaryAggregator{db: db}
}

func (s *SampleSummaryAggregator) Materialize(ctx context.Context, e *model.TExecution) error {
	var summary struct {
		SampleCount   int64
		TotalRequests int64
		ErrorRequests int64
	}
	err := s.db.WithContext(ctx).Model(&model.TExecutionSample{}).
		Select("COUNT(*) AS sample_count, COALESCE(SUM(total_requests), 0) AS total_requests, COALESCE(SUM(error_requests), 0) AS error_requests").
		Where("execution_id = ?", e.ID).
		Scan(&summary).Error
	if err != nil {
		return err
	}

	result := &model.TExecutionResult{
		ExecutionID:   e.ID,
		SampleCount:   summary.SampleCount,
		TotalRequests: summary.TotalRequests,
		ErrorRequests: summary.ErrorRequests,
	}
	if summary.SampleCount > 0 {
		var first, last model.TExecutionSample
		if err := s.db.WithContext(ctx).Where("execution_id = ?", e.ID).Order("timestamp ASC").Order("id ASC").Take(&first).Error; err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Where("execution_id = ?", e.ID).Order("timestamp DESC").Order("id DESC").Take(&last).Error; err != nil {
			return err
		}
		result.FirstSampleAt = &first.Timestamp
		result.LastSampleAt = &last.Timestamp
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "execution_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sample_count", "total_requests", "error_requests", "first_sample_at", "last_sample_at"}),
	}).Create(result).Error
}

// ResultSync 结果同步：终态执行只尝试一次，无论成败都记录已尝试
type ResultSync struct {
	*Deps
	aggregator ResultAggregator
}

// NewResultSync 创建结果同步任务
func NewResultSync(d *Deps, aggregator ResultAggregator) *ResultSync {
	return &ResultSync{Deps: d, aggregator: aggregator}
}

func (r *ResultSync) Name() string {
	return NameResultSync
}

func (r *ResultSync) Run(ctx context.Context) (BatchReport, error) {
	notAttempted := false
	rows, err := r.Executions.FindBatch(ctx, repo.ExecutionFilter{
		Statuses:             model.TerminalStatuses(),
		ResultSyncAttempted:  &notAttempted,
		ResultSyncNotStarted: true,
	}, JobSettings(r.Config, NameResultSync).BatchSize)
	if err != nil {
		return newReport(NameResultSync), err
	}
	report := forEachRow(ctx, NameResultSync, rows, executionID, r.sync)

	if err := r.detectStuck(ctx); err != nil {
		logger.Named(NameResultSync).Warn("检查结果同步异常失败", zap.Error(err))
	}

	r.Metrics.AddRows(NameResultSync, report.OK, report.Skipped, report.Failed)
	logReport(report)
	return report, nil
}

func (r *ResultSync) sync(ctx context.Context, e *model.TExecution) RowResult {
	if err := r.Executions.UpdateFields(ctx, e.ID, map[string]interface{}{
		"result_sync_started_at": r.now(),
	}); err != nil {
		return rowFailed(err)
	}

	syncErr := r.materialize(ctx, e)
	msg := "结果同步成功"
	if syncErr != nil {
		msg = "结果同步失败: " + syncErr.Error()
	}
	if err := r.Executions.UpdateFields(ctx, e.ID, map[string]interface{}{
		"result_sync_attempted": true,
		"result_sync_message":   msg,
	}); err != nil {
		return rowFailed(err)
	}
	if syncErr != nil {
		r.emit(ctx, e, model.EventResultSyncFailed, msg)
		return rowFailed(syncErr)
	}
	return rowOK()
}

func (r *ResultSync) materialize(ctx context.Context, e *model.TExecution) (err error) {
	defer utils.Recover(NameResultSync, func(p any) {
		err = fmt.Errorf("panic: %v", p)
	})
	return r.aggregator.Materialize(ctx, e)
}

// detectStuck 已开始同步但超过宽限仍未记录已尝试的执行，只上报不重试
func (r *ResultSync) detectStuck(ctx context.Context) error {
	notAttempted := false
	before := r.now().Add(-r.Config.Scheduler.ResultSyncGrace.D())
	f := repo.ExecutionFilter{
		Statuses:                model.TerminalStatuses(),
		ResultSyncAttempted:     &notAttempted,
		ResultSyncStartedBefore: &before,
	}
	n, err := r.Executions.Count(ctx, f)
	if err != nil {
		return err
	}
	r.Metrics.SetResultSyncStuck(n)
	if n == 0 {
		return nil
	}

	rows, err := r.Executions.FindBatch(ctx, f, stuckLogLimit)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}
	logger.Named(NameResultSync).Warn("结果同步已开始但未完成", zap.Int64("count", n), zap.Int64s("execution_ids", ids))
	return nil
}
