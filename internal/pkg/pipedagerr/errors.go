// Package pipedagerr defines the typed error kinds surfaced by the
// materialisation store and lock manager. Every kind wraps a sentinel so
// callers can match with errors.Is while still getting a formatted,
// situation-specific message.
package pipedagerr

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateStage    = errors.New("duplicate stage")
	ErrStageAlreadySwapped = errors.New("stage already swapped")
	ErrCacheMiss         = errors.New("cache miss")
	ErrLock              = errors.New("lock error")
	ErrUnknownStage      = errors.New("unknown stage")
	ErrDecode            = errors.New("decode error")
	ErrEncoding          = errors.New("encoding error")
	ErrNotSupported      = errors.New("not supported")
	ErrNotRegistered     = errors.New("not registered")
)

type wrapped struct {
	sentinel error
	detail   string
}

func (w *wrapped) Error() string {
	if w.detail == "" {
		return w.sentinel.Error()
	}
	return fmt.Sprintf("%s: %s", w.sentinel.Error(), w.detail)
}

func (w *wrapped) Unwrap() error { return w.sentinel }

func newErr(sentinel error, format string, args ...interface{}) error {
	return &wrapped{sentinel: sentinel, detail: fmt.Sprintf(format, args...)}
}

func DuplicateStage(format string, args ...interface{}) error {
	return newErr(ErrDuplicateStage, format, args...)
}

func StageAlreadySwapped(format string, args ...interface{}) error {
	return newErr(ErrStageAlreadySwapped, format, args...)
}

func CacheMiss(format string, args ...interface{}) error {
	return newErr(ErrCacheMiss, format, args...)
}

func LockError(format string, args ...interface{}) error {
	return newErr(ErrLock, format, args...)
}

func UnknownStage(format string, args ...interface{}) error {
	return newErr(ErrUnknownStage, format, args...)
}

func DecodeError(format string, args ...interface{}) error {
	return newErr(ErrDecode, format, args...)
}

func EncodingError(format string, args ...interface{}) error {
	return newErr(ErrEncoding, format, args...)
}

func NotSupported(format string, args ...interface{}) error {
	return newErr(ErrNotSupported, format, args...)
}

func NotRegistered(format string, args ...interface{}) error {
	return newErr(ErrNotRegistered, format, args...)
}

// Is reports whether err wraps sentinel. Thin convenience wrapper so
// callers don't need to import both "errors" and this package.
func Is(err, sentinel error) bool { return errors.Is(err, sentinel) }
