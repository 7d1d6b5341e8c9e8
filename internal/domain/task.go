package domain

import "time"

// VersionNone is the sentinel used in place of a missing version string.
// A task with VersionNone is "unversioned / always lazy": it wants to be
// recomputed even when the cache hits, though its result may still be
// deduplicated at the table-store level.
const VersionNone = "None"

// TaskIdentity is the tuple that, together with a canonicalised input
// JSON string, determines a task's cache key.
type TaskIdentity struct {
	OriginalName string
	Version      string // VersionNone when absent
	Stage        Stage
}

// EffectiveVersion returns the identity's version, or VersionNone if it
// is empty, so cache-key derivation always sees a concrete version string.
func (t TaskIdentity) EffectiveVersion() string {
	if t.Version == "" {
		return VersionNone
	}
	return t.Version
}

// Task is everything the materialisation controller needs about one task
// invocation: its identity, whether it wants eager recomputation, the
// input_type capability key honoured by the table store on
// dematerialisation, and (once computed) its cache key.
type Task struct {
	TaskIdentity
	Lazy      bool
	InputType string
	CacheKey  string
}

// TableRef is a value-typed handle (stage, name, cache_key) identifying
// rows held by the table store. It does not own the underlying data.
// Two references are equal iff all three fields match.
type TableRef struct {
	Stage    string
	Name     string
	CacheKey string
}

func (a TableRef) Equal(b TableRef) bool {
	return a.Stage == b.Stage && a.Name == b.Name && a.CacheKey == b.CacheKey
}

// TaskMetadata is the record attached to each materialised output. It is
// immutable once created, written only on successful materialisation,
// and read on cache lookup.
type TaskMetadata struct {
	ID         uint      `gorm:"column:id;primaryKey" json:"-"`
	Name       string    `gorm:"column:name;not null;index:idx_task_metadata_lookup" json:"name"`
	Stage      string    `gorm:"column:stage;not null;index:idx_task_metadata_lookup" json:"stage"`
	Version    string    `gorm:"column:version;not null" json:"version"`
	Timestamp  time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	RunID      string    `gorm:"column:run_id;not null" json:"run_id"`
	CacheKey   string    `gorm:"column:cache_key;not null;index:idx_task_metadata_lookup" json:"cache_key"`
	OutputJSON string    `gorm:"column:output_json;not null" json:"output_json"`
}

func (TaskMetadata) TableName() string { return "pipedag_task_metadata" }

// PendingTable wraps a user task's raw output payload before the
// materialisation controller has assigned it a stage, name and cache
// key. A task's return value embeds these wherever it wants a leaf
// persisted as a table; MaterialiseTask resolves each one into a
// TableRef. It is the pre-identity counterpart of TableRef.
type PendingTable struct {
	Payload interface{}
}
