package tenantctx

import "context"

type keyType string

const (
	TenantIDKey  keyType = "tenant_id"
	ProjectIDKey keyType = "project_id"
)

// WithTenantID stamps the resolved tenant on the request context. The collect
// path sets it after API-key resolution; everything downstream reads it.
func WithTenantID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}

func TenantID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(TenantIDKey).(int64)
	return id, ok
}

func WithProjectID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ProjectIDKey, id)
}

func ProjectID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ProjectIDKey).(int64)
	return id, ok
}
