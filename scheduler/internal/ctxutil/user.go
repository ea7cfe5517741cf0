package ctxutil

import (
	"context"

	"yqhp/scheduler/internal/types"
)

type ctxKey string

const actorKey ctxKey = "actor"

// WithActor 将操作主体存入context
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor 从context获取操作主体，未登录时返回零值
func GetActor(ctx context.Context) (types.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(types.Actor)
	return actor, ok
}

// GetUserID 从context获取用户ID
func GetUserID(ctx context.Context) int64 {
	actor, _ := GetActor(ctx)
	return actor.UserID
}
