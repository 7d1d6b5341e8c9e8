package domain

import "fmt"

// Stage is a named logical unit of a pipeline with a production-visible
// name and a derived staging ("working") name. It is created once per
// logical pipeline stage and lives for the process lifetime.
type Stage struct {
	Name        string
	WorkingName string
}

// NewStage derives the working name from name by prefixing a leading
// underscore, giving every stage a production/staging namespace pair.
func NewStage(name string) Stage {
	return Stage{Name: name, WorkingName: "_" + name}
}

func (s Stage) String() string {
	return fmt.Sprintf("Stage(%s)", s.Name)
}

// Lockable is anything the lock manager can lock: a Stage or an opaque
// string. Equality is by value, which both types already satisfy.
type Lockable interface{}

// LockableKey produces a stable string key for a Lockable, used as the
// map key in the lock-state machine and in the file/coordinator backends'
// held-lock bookkeeping. Backend paths are built from LockableName.
func LockableKey(l Lockable) (string, error) {
	switch v := l.(type) {
	case Stage:
		return "stage:" + v.Name, nil
	case string:
		return "str:" + v, nil
	default:
		return "", fmt.Errorf("lockable of type %T is not supported", l)
	}
}

// LockableName returns the human-facing name used to build backend paths
// (file names, coordinator keys) for a Lockable.
func LockableName(l Lockable) (string, error) {
	switch v := l.(type) {
	case Stage:
		return v.Name, nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("lockable of type %T is not supported", l)
	}
}
