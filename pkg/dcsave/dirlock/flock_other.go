//go:build !unix

package dirlock

import (
	"errors"
	"os"
)

var errWouldBlock = errors.New("lock held")

// Without flock only the in-process mutex applies.
func tryLockFile(*os.File) error { return nil }

func unlockFile(*os.File) {}
