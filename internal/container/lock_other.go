//go:build !unix

package container

import "os"

// No advisory locking outside unix; handles rely on single-process use.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) error { return nil }
