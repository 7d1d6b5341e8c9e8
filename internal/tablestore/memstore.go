package tablestore

import (
	"context"
	"sync"
	"time"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

type tableEntry struct {
	namespace string
	name      string
	cacheKey  string
	payload   interface{}
	lazy      bool
}

type metadataEntry struct {
	namespace string
	record    domain.TaskMetadata
}

// MemStore is an in-process, map-backed Store. It's the default for
// local runs and for exercising the materialisation controller without a
// database, holding stage, table and metadata bookkeeping in plain Go
// slices and maps rather than delegating them to a real backend.
type MemStore struct {
	mu     sync.Mutex
	stages map[string]domain.Stage
	tables []tableEntry
	meta   []metadataEntry
	log    *logger.Logger
}

func NewMemStore(log *logger.Logger) *MemStore {
	if log == nil {
		log = logger.Nop()
	}
	return &MemStore{
		stages: make(map[string]domain.Stage),
		log:    log.With("component", "tablestore.MemStore"),
	}
}

func (s *MemStore) CreateStage(ctx context.Context, stage domain.Stage) error {
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

func (s *MemStore) workingNamespace(productionName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[productionName]
	if !ok {
		return "", pipedagerr.UnknownStage("%q", productionName)
	}
	return stage.WorkingName, nil
}

func (s *MemStore) StoreTable(ctx context.Context, ref domain.TableRef, payload interface{}, lazy bool) error {
	namespace, err := s.workingNamespace(ref.Stage)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tables {
		if t.namespace == namespace && t.name == ref.Name && t.cacheKey == ref.CacheKey {
			s.tables[i] = tableEntry{namespace, ref.Name, ref.CacheKey, payload, lazy}
			return nil
		}
	}
	s.tables = append(s.tables, tableEntry{namespace, ref.Name, ref.CacheKey, payload, lazy})
	return nil
}

func (s *MemStore) RetrieveTable(ctx context.Context, ref domain.TableRef, asType string) (interface{}, error) {
	namespace, _ := s.workingNamespace(ref.Stage)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range []string{namespace, ref.Stage} {
		if ns == "" {
			continue
		}
		for _, t := range s.tables {
			if t.namespace == ns && t.name == ref.Name && t.cacheKey == ref.CacheKey {
				return t.payload, nil
			}
		}
	}
	return nil, pipedagerr.CacheMiss("no table %s/%s/%s", ref.Stage, ref.Name, ref.CacheKey)
}

func (s *MemStore) StoreTaskMetadata(ctx context.Context, record domain.TaskMetadata) error {
	namespace, err := s.workingNamespace(record.Stage)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = append(s.meta, metadataEntry{namespace, record})
	return nil
}

func (s *MemStore) RetrieveTaskMetadata(ctx context.Context, task domain.TaskIdentity, cacheKey string) (domain.TaskMetadata, error) {
	namespace, _ := s.workingNamespace(task.Stage.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range []string{namespace, task.Stage.Name} {
		if ns == "" {
			continue
		}
		for i := len(s.meta) - 1; i >= 0; i-- {
			m := s.meta[i]
			if m.namespace == ns && m.record.Name == task.OriginalName &&
				m.record.Stage == task.Stage.Name && m.record.CacheKey == cacheKey {
				return m.record, nil
			}
		}
	}
	return domain.TaskMetadata{}, pipedagerr.CacheMiss("no metadata for %s/%s/%s", task.Stage.Name, task.OriginalName, cacheKey)
}

func (s *MemStore) CopyTableToWorking(ctx context.Context, ref domain.TableRef) error {
	namespace, err := s.workingNamespace(ref.Stage)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		if t.namespace == ref.Stage && t.name == ref.Name && t.cacheKey == ref.CacheKey {
			s.tables = append(s.tables, tableEntry{namespace, ref.Name, ref.CacheKey, t.payload, t.lazy})
			return nil
		}
	}
	return pipedagerr.CacheMiss("no production table %s/%s/%s to copy", ref.Stage, ref.Name, ref.CacheKey)
}

func (s *MemStore) CopyTaskMetadataToWorking(ctx context.Context, task domain.TaskIdentity, cacheKey string) error {
	namespace, err := s.workingNamespace(task.Stage.Name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.meta) - 1; i >= 0; i-- {
		m := s.meta[i]
		if m.namespace == task.Stage.Name && m.record.Name == task.OriginalName &&
			m.record.Stage == task.Stage.Name && m.record.CacheKey == cacheKey {
			copied := m.record
			s.meta = append(s.meta, metadataEntry{namespace, copied})
			return nil
		}
	}
	return pipedagerr.CacheMiss("no production metadata for %s/%s/%s to copy", task.Stage.Name, task.OriginalName, cacheKey)
}

func (s *MemStore) SwapStage(ctx context.Context, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keptTables []tableEntry
	for _, t := range s.tables {
		switch t.namespace {
		case stage.Name:
			continue // dropped: promoted working rows replace it
		case stage.WorkingName:
			t.namespace = stage.Name
			keptTables = append(keptTables, t)
		default:
			keptTables = append(keptTables, t)
		}
	}
	s.tables = keptTables

	var keptMeta []metadataEntry
	for _, m := range s.meta {
		switch m.namespace {
		case stage.Name:
			continue
		case stage.WorkingName:
			m.namespace = stage.Name
			keptMeta = append(keptMeta, m)
		default:
			keptMeta = append(keptMeta, m)
		}
	}
	s.meta = keptMeta

	s.log.Info("swapped stage", "stage", stage.Name, "timestamp", time.Now())
	return nil
}
