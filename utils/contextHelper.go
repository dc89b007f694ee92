package utils

import (
	"context"

	"github.com/mmdatafocus/billing_backend/appctx"
)

var (
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyTriggerSource = appctx.ContextKeyTriggerSource
)

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetTriggerSourceFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTriggerSource)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetTriggerSourceInContext(ctx context.Context, source string) context.Context {
	return appctx.Set(ctx, ContextKeyTriggerSource, source)
}
