// Package install places verified binaries into an installation prefix and keeps a receipt of every
// installed formula.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/Helcaraxan/formulary/internal/flock"
	"github.com/Helcaraxan/formulary/internal/formula"
)

var (
	ErrInstallPathUnwritable = errors.New("install path is not writable")
	ErrNotInstalled          = errors.New("formula is not installed")
)

const binaryMode os.FileMode = 0o755

// Receipt records what was installed for a formula.
type Receipt struct {
	Name        string    `yaml:"name"`
	Version     string    `yaml:"version"`
	Triple      string    `yaml:"triple"`
	Source      string    `yaml:"source"`
	Checksum    string    `yaml:"checksum"`
	Files       []string  `yaml:"files"`
	InstalledAt time.Time `yaml:"installed_at"`
}

type Installer struct {
	log        *zap.Logger
	binDir     string
	receiptDir string
}

func New(log *zap.Logger, binDir string, receiptDir string) *Installer {
	return &Installer{
		log:        log,
		binDir:     binDir,
		receiptDir: receiptDir,
	}
}

// Install places the files extracted from the artifact, keyed by their path inside the artifact,
// into the binary directory. Either every file is installed or none is: when a file can not be moved
// into place or the receipt can not be written, files already replaced are restored to their prior
// content. Files installed by a previous version of the same formula that are not part of this
// installation are removed.
func (i *Installer) Install(ctx context.Context, a formula.Artifact, files map[string][]byte) (*Receipt, error) {
	log := i.log.With(zap.Stringer("binary", a.Binary), zap.String("bin-dir", i.binDir))

	unlock, err := i.lock(ctx, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	if err = os.MkdirAll(i.binDir, 0o755); err != nil {
		log.Error("Unable to create the binary directory.", zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrInstallPathUnwritable, i.binDir, err)
	}

	previous, err := i.Receipt(a.Binary.Tool)
	if err != nil && !errors.Is(err, ErrNotInstalled) {
		return nil, err
	}

	var (
		pending   []*pendingFile
		originals []originalFile
	)
	abort := func() {
		for _, p := range pending {
			p.abort()
		}
	}

	receipt := &Receipt{
		Name:        a.Binary.Tool,
		Version:     a.Binary.Version,
		Triple:      a.Triple,
		Source:      a.URL,
		Checksum:    a.Checksum.String(),
		InstalledAt: time.Now().UTC(),
	}
	for _, action := range a.Install {
		content, ok := files[action.Bin]
		if !ok {
			abort()
			log.Error("No content available for install action.", zap.String("file", action.Bin))
			return nil, fmt.Errorf("no content for %q of %s", action.Bin, a.Binary)
		}

		target := filepath.Join(i.binDir, action.Target())
		original, err := readOriginal(target)
		if err != nil {
			abort()
			log.Error("Unable to read the file that would be replaced.", zap.String("path", target), zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %w", ErrInstallPathUnwritable, target, err)
		}
		p, err := newPendingFile(target, content, binaryMode)
		if err != nil {
			abort()
			log.Error("Unable to write binary.", zap.String("path", target), zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %w", ErrInstallPathUnwritable, target, err)
		}
		pending = append(pending, p)
		originals = append(originals, original)
		receipt.Files = append(receipt.Files, target)
	}

	var committed []originalFile
	for idx, p := range pending {
		if err = p.commit(); err != nil {
			for _, remaining := range pending[idx:] {
				remaining.abort()
			}
			log.Error("Unable to move binary into place.", zap.String("path", p.path), zap.Error(err))
			rollback(log, committed)
			return nil, fmt.Errorf("%w: %s: %w", ErrInstallPathUnwritable, p.path, err)
		}
		committed = append(committed, originals[idx])
		log.Debug("Installed file.", zap.String("path", p.path))
	}

	if err = i.writeReceipt(receipt); err != nil {
		log.Error("Failed to write install receipt.", zap.Error(err))
		rollback(log, committed)
		return nil, err
	}
	if previous != nil {
		i.removeOrphans(log, previous, receipt)
	}
	log.Debug("Wrote install receipt.", zap.Strings("files", receipt.Files))
	return receipt, nil
}

// Uninstall removes every file recorded in the formula's receipt and then the receipt itself.
func (i *Installer) Uninstall(ctx context.Context, name string) error {
	log := i.log.With(zap.String("formula", name))

	receipt, err := i.Receipt(name)
	if err != nil {
		return err
	}

	unlock, err := i.lock(ctx, log)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	for _, f := range receipt.Files {
		if err = os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error("Failed to remove installed file.", zap.String("path", f), zap.Error(err))
			return fmt.Errorf("failed to remove %q: %w", f, err)
		}
		log.Debug("Removed file.", zap.String("path", f))
	}

	if err = os.Remove(i.receiptPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("Failed to remove install receipt.", zap.Error(err))
		return fmt.Errorf("failed to remove receipt for %q: %w", name, err)
	}
	return nil
}

func (i *Installer) Receipt(name string) (*Receipt, error) {
	raw, err := os.ReadFile(i.receiptPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	} else if err != nil {
		i.log.Error("Unable to read install receipt.", zap.String("formula", name), zap.Error(err))
		return nil, err
	}

	var r Receipt
	if err = yaml.Unmarshal(raw, &r); err != nil {
		i.log.Error("Unable to decode install receipt.", zap.String("formula", name), zap.Error(err))
		return nil, fmt.Errorf("corrupt receipt for %q: %w", name, err)
	}
	return &r, nil
}

// Receipts lists the receipts of all installed formulae ordered by name.
func (i *Installer) Receipts() ([]*Receipt, error) {
	entries, err := os.ReadDir(i.receiptDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		i.log.Error("Unable to list install receipts.", zap.String("path", i.receiptDir), zap.Error(err))
		return nil, err
	}

	var receipts []*Receipt
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		r, err := i.Receipt(strings.TrimSuffix(e.Name(), ".yaml"))
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	sort.Slice(receipts, func(a, b int) bool { return receipts[a].Name < receipts[b].Name })
	return receipts, nil
}

// originalFile is what a target path held before an installation replaced it.
type originalFile struct {
	path    string
	existed bool
	content []byte
	mode    os.FileMode
}

func readOriginal(path string) (originalFile, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return originalFile{path: path}, nil
	} else if err != nil {
		return originalFile{}, err
	}
	if !fi.Mode().IsRegular() {
		// Committing over anything but a regular file fails, so it never needs restoring.
		return originalFile{path: path}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return originalFile{}, err
	}
	return originalFile{path: path, existed: true, content: content, mode: fi.Mode().Perm()}, nil
}

func (o originalFile) restore() error {
	if !o.existed {
		if err := os.Remove(o.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return writeFile(o.path, o.content, o.mode)
}

// rollback restores committed files in reverse order so that a path targeted twice ends up with its
// original content.
func rollback(log *zap.Logger, committed []originalFile) {
	for idx := len(committed) - 1; idx >= 0; idx-- {
		o := committed[idx]
		if err := o.restore(); err != nil {
			log.Warn("Failed to restore file after an aborted installation.", zap.String("path", o.path), zap.Error(err))
			continue
		}
		log.Debug("Restored file after an aborted installation.", zap.String("path", o.path), zap.Bool("existed", o.existed))
	}
}

func (i *Installer) removeOrphans(log *zap.Logger, previous *Receipt, current *Receipt) {
	kept := map[string]bool{}
	for _, f := range current.Files {
		kept[f] = true
	}
	for _, f := range previous.Files {
		if kept[f] {
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove file from previous installation.", zap.String("path", f), zap.Error(err))
			continue
		}
		log.Debug("Removed file from previous installation.", zap.String("path", f), zap.String("previous-version", previous.Version))
	}
}

func (i *Installer) writeReceipt(r *Receipt) error {
	raw, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode receipt for %q: %w", r.Name, err)
	}
	if err = writeFile(i.receiptPath(r.Name), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write receipt for %q: %w", r.Name, err)
	}
	return nil
}

func (i *Installer) receiptPath(name string) string {
	return filepath.Join(i.receiptDir, name+".yaml")
}

func (i *Installer) lock(ctx context.Context, log *zap.Logger) (func() error, error) {
	if err := os.MkdirAll(i.receiptDir, 0o755); err != nil {
		log.Error("Unable to create the receipt directory.", zap.String("path", i.receiptDir), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrInstallPathUnwritable, i.receiptDir, err)
	}
	return flock.Lock(ctx, log, filepath.Join(i.receiptDir, "install"))
}
