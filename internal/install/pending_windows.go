//go:build windows

package install

import (
	"os"
	"path/filepath"
)

// pendingFile holds content destined for a path until it is committed. Committing replaces whatever
// is at the path with a rename, which is the closest Windows offers to an atomic replacement.
type pendingFile struct {
	path    string
	tmpPath string
}

func newPendingFile(path string, content []byte, perm os.FileMode) (*pendingFile, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".pending-*")
	if err != nil {
		return nil, err
	}
	p := &pendingFile{path: path, tmpPath: tmp.Name()}

	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		p.abort()
		return nil, err
	}
	if err = tmp.Close(); err != nil {
		p.abort()
		return nil, err
	}
	if err = os.Chmod(p.tmpPath, perm); err != nil {
		p.abort()
		return nil, err
	}
	return p, nil
}

func (p *pendingFile) commit() error {
	return os.Rename(p.tmpPath, p.path)
}

func (p *pendingFile) abort() {
	_ = os.Remove(p.tmpPath)
}

func writeFile(path string, content []byte, perm os.FileMode) error {
	p, err := newPendingFile(path, content, perm)
	if err != nil {
		return err
	}
	if err = p.commit(); err != nil {
		p.abort()
		return err
	}
	return nil
}
