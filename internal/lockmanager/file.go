package lockmanager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

// FileLockManager takes one advisory lock file per lockable under
// baseDir, via flock(2). Fine for a handful of cooperating processes on
// one host, not for a distributed fleet — use the coordinator backend
// for that.
type FileLockManager struct {
	*base
	baseDir string

	mu    sync.Mutex
	locks map[string]*fileLock
}

type fileLock struct {
	path string
	file *os.File
	refs int
}

func NewFileLockManager(baseDir string, log *logger.Logger) (*FileLockManager, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FileLockManager{
		base:    newBase(log.With("component", "lockmanager.FileLockManager", "base_dir", abs)),
		baseDir: abs,
		locks:   make(map[string]*fileLock),
	}, nil
}

func (f *FileLockManager) Acquire(ctx context.Context, lockable domain.Lockable) error {
	key, err := domain.LockableKey(lockable)
	if err != nil {
		return pipedagerr.NotSupported("%v", err)
	}
	name, err := domain.LockableName(lockable)
	if err != nil {
		return pipedagerr.NotSupported("%v", err)
	}

	f.mu.Lock()
	fl, exists := f.locks[key]
	if !exists {
		path := filepath.Join(f.baseDir, name+".lock")
		file, openErr := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if openErr != nil {
			f.mu.Unlock()
			return pipedagerr.LockError("open lock file %q: %v", path, openErr)
		}
		fl = &fileLock{path: path, file: file}
		f.locks[key] = fl
	}
	firstHolder := fl.refs == 0
	f.mu.Unlock()

	if firstHolder {
		f.log.Info("Locking", "lockable", lockable)
	}
	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_EX); err != nil {
		return pipedagerr.LockError("flock %q: %v", fl.path, err)
	}

	f.mu.Lock()
	fl.refs++
	f.mu.Unlock()

	if err := f.machine.Acquire(lockable); err != nil {
		f.mu.Lock()
		fl.refs--
		lastHolder := fl.refs == 0
		if lastHolder {
			delete(f.locks, key)
		}
		f.mu.Unlock()

		// The flock is shared by every holder of this file, so it is only
		// released when no holder remains.
		if lastHolder {
			if unlockErr := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); unlockErr != nil {
				f.log.Error("unflock after failed lock-state acquire", "lockable", lockable, "error", unlockErr)
			}
			_ = fl.file.Close()
			_ = os.Remove(fl.path)
		}
		return err
	}

	return nil
}

func (f *FileLockManager) Release(ctx context.Context, lockable domain.Lockable) error {
	key, err := domain.LockableKey(lockable)
	if err != nil {
		return pipedagerr.NotSupported("%v", err)
	}

	f.mu.Lock()
	fl, exists := f.locks[key]
	f.mu.Unlock()
	if !exists {
		return pipedagerr.LockError("no lock %v found", lockable)
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		return pipedagerr.LockError("unflock %q: %v", fl.path, err)
	}

	f.mu.Lock()
	fl.refs--
	lastHolder := fl.refs == 0
	if lastHolder {
		delete(f.locks, key)
	}
	f.mu.Unlock()

	if lastHolder {
		f.log.Info("Unlocking", "lockable", lockable)
		_ = fl.file.Close()
		_ = os.Remove(fl.path)
	}

	return f.machine.Release(lockable)
}
