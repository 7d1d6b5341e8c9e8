package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

// tableRow is the GORM model backing persisted table payloads. namespace
// holds either a stage's production name or its working name — the two
// physical buckets a stage's data moves between on swap.
type tableRow struct {
	ID          uint           `gorm:"column:id;primaryKey"`
	Namespace   string         `gorm:"column:namespace;not null;index:idx_pipedag_table_lookup,priority:1"`
	Name        string         `gorm:"column:name;not null;index:idx_pipedag_table_lookup,priority:2"`
	CacheKey    string         `gorm:"column:cache_key;not null;index:idx_pipedag_table_lookup,priority:3"`
	Lazy        bool           `gorm:"column:lazy;not null"`
	PayloadJSON datatypes.JSON `gorm:"column:payload_json"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
}

func (tableRow) TableName() string { return "pipedag_tables" }

// taskMetadataRow adds the same namespace bucketing to domain.TaskMetadata
// without polluting the domain type with a storage-internal concept.
type taskMetadataRow struct {
	domain.TaskMetadata `gorm:"embedded"`
	Namespace           string `gorm:"column:namespace;not null;index:idx_pipedag_meta_lookup,priority:1"`
}

func (taskMetadataRow) TableName() string { return "pipedag_task_metadata" }

// GormStore persists tables and metadata through GORM, so it works
// unmodified against Postgres or SQLite (the two dialects wired into
// go.mod). Stage bookkeeping itself stays in-process: it's the table
// store's record of which production name maps to which working name,
// not row data, so it doesn't need a table of its own.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger

	mu     sync.Mutex
	stages map[string]domain.Stage
}

func NewGormStore(db *gorm.DB, log *logger.Logger) (*GormStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := db.AutoMigrate(&tableRow{}, &taskMetadataRow{}); err != nil {
		return nil, err
	}
	return &GormStore{
		db:     db,
		log:    log.With("component", "tablestore.GormStore"),
		stages: make(map[string]domain.Stage),
	}, nil
}

func (s *GormStore) CreateStage(ctx context.Context, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stages[stage.Name]; ok {
		return pipedagerr.DuplicateStage("stage with name %q already exists in table store", stage.Name)
	}
	if _, ok := s.stages[stage.WorkingName]; ok {
		return pipedagerr.DuplicateStage("stage with working name %q already exists in table store", stage.WorkingName)
	}
	s.stages[stage.Name] = stage
	s.stages[stage.WorkingName] = stage
	return nil
}

func (s *GormStore) workingNamespace(productionName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[productionName]
	if !ok {
		return "", pipedagerr.UnknownStage("%q", productionName)
	}
	return stage.WorkingName, nil
}

func (s *GormStore) StoreTable(ctx context.Context, ref domain.TableRef, payload interface{}, lazy bool) error {
	namespace, err := s.workingNamespace(ref.Stage)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return pipedagerr.EncodingError("marshalling table payload: %v", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("namespace = ? AND name = ? AND cache_key = ?", namespace, ref.Name, ref.CacheKey).
			Delete(&tableRow{}).Error; err != nil {
			return err
		}
		row := tableRow{
			Namespace:   namespace,
			Name:        ref.Name,
			CacheKey:    ref.CacheKey,
			Lazy:        lazy,
			PayloadJSON: datatypes.JSON(raw),
			CreatedAt:   time.Now(),
		}
		return tx.Create(&row).Error
	})
}

func (s *GormStore) findTableRow(ctx context.Context, namespaces []string, name, cacheKey string) (tableRow, error) {
	for _, ns := range namespaces {
		if ns == "" {
			continue
		}
		var row tableRow
		err := s.db.WithContext(ctx).
			Where("namespace = ? AND name = ? AND cache_key = ?", ns, name, cacheKey).
			First(&row).Error
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return tableRow{}, err
		}
	}
	return tableRow{}, pipedagerr.CacheMiss("no table %s/%s/%s", namespaces, name, cacheKey)
}

func (s *GormStore) RetrieveTable(ctx context.Context, ref domain.TableRef, asType string) (interface{}, error) {
	namespace, _ := s.workingNamespace(ref.Stage)
	row, err := s.findTableRow(ctx, []string{namespace, ref.Stage}, ref.Name, ref.CacheKey)
	if err != nil {
		return nil, err
	}
	var payload interface{}
	if err := json.Unmarshal(row.PayloadJSON, &payload); err != nil {
		return nil, pipedagerr.DecodeError("unmarshalling table payload: %v", err)
	}
	return payload, nil
}

func (s *GormStore) StoreTaskMetadata(ctx context.Context, record domain.TaskMetadata) error {
	namespace, err := s.workingNamespace(record.Stage)
	if err != nil {
		return err
	}
	row := taskMetadataRow{TaskMetadata: record, Namespace: namespace}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) RetrieveTaskMetadata(ctx context.Context, task domain.TaskIdentity, cacheKey string) (domain.TaskMetadata, error) {
	namespace, _ := s.workingNamespace(task.Stage.Name)

	for _, ns := range []string{namespace, task.Stage.Name} {
		if ns == "" {
			continue
		}
		var row taskMetadataRow
		err := s.db.WithContext(ctx).
			Where("namespace = ? AND name = ? AND stage = ? AND cache_key = ?", ns, task.OriginalName, task.Stage.Name, cacheKey).
			Order("timestamp DESC").
			First(&row).Error
		if err == nil {
			return row.TaskMetadata, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TaskMetadata{}, err
		}
	}
	return domain.TaskMetadata{}, pipedagerr.CacheMiss("no metadata for %s/%s/%s", task.Stage.Name, task.OriginalName, cacheKey)
}

func (s *GormStore) CopyTableToWorking(ctx context.Context, ref domain.TableRef) error {
	namespace, err := s.workingNamespace(ref.Stage)
	if err != nil {
		return err
	}
	var row tableRow
	err = s.db.WithContext(ctx).
		Where("namespace = ? AND name = ? AND cache_key = ?", ref.Stage, ref.Name, ref.CacheKey).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pipedagerr.CacheMiss("no production table %s/%s/%s to copy", ref.Stage, ref.Name, ref.CacheKey)
	}
	if err != nil {
		return err
	}
	row.ID = 0
	row.Namespace = namespace
	row.CreatedAt = time.Now()
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) CopyTaskMetadataToWorking(ctx context.Context, task domain.TaskIdentity, cacheKey string) error {
	namespace, err := s.workingNamespace(task.Stage.Name)
	if err != nil {
		return err
	}
	var row taskMetadataRow
	err = s.db.WithContext(ctx).
		Where("namespace = ? AND name = ? AND stage = ? AND cache_key = ?", task.Stage.Name, task.OriginalName, task.Stage.Name, cacheKey).
		Order("timestamp DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pipedagerr.CacheMiss("no production metadata for %s/%s/%s to copy", task.Stage.Name, task.OriginalName, cacheKey)
	}
	if err != nil {
		return err
	}
	row.ID = 0
	row.Namespace = namespace
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) SwapStage(ctx context.Context, stage domain.Stage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("namespace = ?", stage.Name).Delete(&tableRow{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&tableRow{}).Where("namespace = ?", stage.WorkingName).
			Update("namespace", stage.Name).Error; err != nil {
			return err
		}
		if err := tx.Where("namespace = ?", stage.Name).Delete(&taskMetadataRow{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&taskMetadataRow{}).Where("namespace = ?", stage.WorkingName).
			Update("namespace", stage.Name).Error; err != nil {
			return err
		}
		s.log.Info("swapped stage", "stage", stage.Name)
		return nil
	})
}
