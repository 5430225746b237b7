//go:build !windows

package install

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// pendingFile holds content destined for a path until it is committed. Committing atomically
// replaces whatever is at the path.
type pendingFile struct {
	path string
	file *renameio.PendingFile
}

func newPendingFile(path string, content []byte, perm os.FileMode) (*pendingFile, error) {
	pf, err := renameio.NewPendingFile(path, renameio.WithTempDir(filepath.Dir(path)), renameio.WithPermissions(perm))
	if err != nil {
		return nil, err
	}
	if _, err = pf.Write(content); err != nil {
		_ = pf.Cleanup()
		return nil, err
	}
	// Not subject to the umask.
	if err = pf.Chmod(perm); err != nil {
		_ = pf.Cleanup()
		return nil, err
	}
	return &pendingFile{path: path, file: pf}, nil
}

func (p *pendingFile) commit() error {
	return p.file.CloseAtomicallyReplace()
}

func (p *pendingFile) abort() {
	_ = p.file.Cleanup()
}

func writeFile(path string, content []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, content, perm, renameio.WithTempDir(filepath.Dir(path)))
}
