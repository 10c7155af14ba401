package zfs

import (
	"errors"
	"strings"
	"syscall"
)

// ErrNotSnapshot guards against destroying anything that is not a snapshot.
var ErrNotSnapshot = errors.New("refusing to destroy a name that is not a snapshot")

var transientMessages = []string{
	"dataset is busy",
	"resource busy",
	"try again",
}

// isTransient reports whether a destroy failure is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var ce *CommandError
	if errors.As(err, &ce) {
		msg := strings.ToLower(ce.Stderr)
		for _, m := range transientMessages {
			if strings.Contains(msg, m) {
				return true
			}
		}
	}
	return false
}
