package merge

import (
	"os"

	"keeper/internal/fileutil"
)

// FileOps is the executor's filesystem seam. Tests substitute a faulty
// implementation to exercise rollback at every action boundary.
type FileOps interface {
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	MoveFile(src, dst string) error
	CopyFile(src, dst string) error
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
	Remove(path string) error
}

// DefaultFileOps is the real filesystem implementation.
var DefaultFileOps FileOps = osFileOps{}

type osFileOps struct{}

func (osFileOps) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (osFileOps) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (osFileOps) MoveFile(src, dst string) error { return fileutil.MoveFile(src, dst) }

func (osFileOps) CopyFile(src, dst string) error { return fileutil.CopyFileVerified(src, dst) }

func (osFileOps) Remove(path string) error { return os.Remove(path) }

func (osFileOps) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return fileutil.WriteFileAtomic(path, data, perm)
}
