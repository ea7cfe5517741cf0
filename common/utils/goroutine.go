package utils

import (
	"runtime/debug"

	"yqhp/common/logger"

	"go.uber.org/zap"
)

// Recover 捕获 panic 并记录堆栈，需直接 defer 调用
// 使用方式: defer utils.Recover("notify", func(r any) { ... })
func Recover(name string, onPanic func(r any)) {
	if r := recover(); r != nil {
		logger.Error("panic 已恢复",
			zap.String("name", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		if onPanic != nil {
			onPanic(r)
		}
	}
}
