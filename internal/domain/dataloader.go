package domain

import "context"

// DataLoader is the Data Loader component's public boundary (C2): loads,
// caches, and invalidates per-(productType, exchange) datasets regardless
// of whether the concrete backend is CSV files or a SQL connection.
type DataLoader interface {
	Load(ctx context.Context, productType, exchange string) (*Dataset, error)
	WarmUp(ctx context.Context, productType, exchange string) error
	Invalidate(ctx context.Context, productType, exchange string)
	Stats() CacheStats
}
