// Package tablestore defines the boundary the materialisation controller
// calls into and provides two implementations: an in-process map-backed
// store for local runs and unit tests, and a GORM-backed store for
// Postgres or SQLite.
package tablestore

import (
	"context"

	"github.com/pipedag/pipedag-engine/internal/domain"
)

// Store is the external table-store contract. The core owns neither
// schema nor file layout; it only calls these operations.
type Store interface {
	CreateStage(ctx context.Context, stage domain.Stage) error

	// SwapStage atomically renames the working namespace over the
	// production namespace.
	SwapStage(ctx context.Context, stage domain.Stage) error

	// StoreTable persists payload behind ref. lazy is forwarded from the
	// owning task and is opaque to the store's correctness contract — it
	// exists so a backend may choose not to materialise eagerly.
	StoreTable(ctx context.Context, ref domain.TableRef, payload interface{}, lazy bool) error

	// RetrieveTable materialises the table behind ref into the requested
	// in-memory form. asType is the task's declared input_type capability
	// key; dtype/dataframe conversion isn't this store's job, so asType
	// is accepted but not interpreted.
	RetrieveTable(ctx context.Context, ref domain.TableRef, asType string) (interface{}, error)

	StoreTaskMetadata(ctx context.Context, record domain.TaskMetadata) error

	// RetrieveTaskMetadata fails with pipedagerr.ErrCacheMiss if no record
	// matches (task, cacheKey).
	RetrieveTaskMetadata(ctx context.Context, task domain.TaskIdentity, cacheKey string) (domain.TaskMetadata, error)

	// CopyTableToWorking copies ref's production-stage row into its
	// working namespace, for cache-hit replay.
	CopyTableToWorking(ctx context.Context, ref domain.TableRef) error

	// CopyTaskMetadataToWorking copies the metadata record matching
	// (task, cacheKey) from the production stage into the working
	// namespace. cacheKey disambiguates a parameterized task invoked
	// with different inputs but sharing the same (name, stage).
	CopyTaskMetadataToWorking(ctx context.Context, task domain.TaskIdentity, cacheKey string) error
}
