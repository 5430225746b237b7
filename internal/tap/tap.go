// Package tap manages git repositories of formulae cloned into a local directory.
package tap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

var ErrInvalidTap = errors.New("invalid tap")

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// FormulaDir is the directory inside a tap's repository that holds its formula files.
const FormulaDir = "formulae"

type Tap struct {
	Name   string
	URL    string
	Commit string
	Path   string
}

type Manager struct {
	log *zap.Logger
	dir string
}

func NewManager(log *zap.Logger, dir string) *Manager {
	return &Manager{
		log: log,
		dir: dir,
	}
}

func (m *Manager) Dir() string {
	return m.dir
}

// Add clones the repository at url as a new tap.
func (m *Manager) Add(ctx context.Context, name string, url string) (*Tap, error) {
	log := m.log.With(zap.String("tap", name), zap.String("url", url))

	if !namePattern.MatchString(name) {
		log.Error("Invalid tap name.")
		return nil, fmt.Errorf("%w: name %q must match %s", ErrInvalidTap, name, namePattern)
	}
	path := filepath.Join(m.dir, name)
	if _, err := os.Stat(path); err == nil {
		log.Error("A tap with this name already exists.")
		return nil, fmt.Errorf("%w: tap %q already exists", ErrInvalidTap, name)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		log.Error("Unable to create the taps directory.", zap.Error(err))
		return nil, err
	}

	log.Debug("Cloning tap repository.")
	if _, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:          url,
		SingleBranch: true,
	}); err != nil {
		_ = os.RemoveAll(path)
		log.Error("Failed to clone tap repository.", zap.Error(err))
		return nil, fmt.Errorf("failed to clone %q: %w", url, err)
	}

	t, err := m.open(name)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(filepath.Join(path, FormulaDir)); err != nil || !fi.IsDir() {
		log.Warn("Tap repository does not contain a formulae directory.")
	}
	return t, nil
}

// List returns all taps ordered by name.
func (m *Manager) List() ([]*Tap, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		m.log.Error("Unable to list taps.", zap.String("path", m.dir), zap.Error(err))
		return nil, err
	}

	var taps []*Tap
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := m.open(e.Name())
		if errors.Is(err, ErrInvalidTap) {
			m.log.Warn("Ignoring directory that is not a valid tap.", zap.String("name", e.Name()), zap.Error(err))
			continue
		} else if err != nil {
			return nil, err
		}
		taps = append(taps, t)
	}
	return taps, nil
}

// Update pulls the latest commits of the tap's tracked branch.
func (m *Manager) Update(ctx context.Context, name string) (*Tap, error) {
	log := m.log.With(zap.String("tap", name))

	repo, err := m.repository(name)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		log.Error("Failed to determine the git worktree.", zap.Error(err))
		return nil, err
	}

	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName, SingleBranch: true})
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		log.Debug("Tap is already up-to-date.")
	case err != nil:
		log.Error("Failed to pull tap repository.", zap.Error(err))
		return nil, fmt.Errorf("failed to update tap %q: %w", name, err)
	default:
		log.Debug("Updated tap.")
	}
	return m.open(name)
}

func (m *Manager) Remove(name string) error {
	if _, err := m.repository(name); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(m.dir, name)); err != nil {
		m.log.Error("Failed to remove tap.", zap.String("tap", name), zap.Error(err))
		return err
	}
	return nil
}

func (m *Manager) repository(name string) (*git.Repository, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: name %q must match %s", ErrInvalidTap, name, namePattern)
	}
	repo, err := git.PlainOpen(filepath.Join(m.dir, name))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		m.log.Error("No such tap.", zap.String("tap", name))
		return nil, fmt.Errorf("%w: no tap named %q", ErrInvalidTap, name)
	} else if err != nil {
		m.log.Error("Unable to open tap repository.", zap.String("tap", name), zap.Error(err))
		return nil, err
	}
	return repo, nil
}

func (m *Manager) open(name string) (*Tap, error) {
	repo, err := m.repository(name)
	if err != nil {
		return nil, err
	}

	t := &Tap{Name: name, Path: filepath.Join(m.dir, name)}
	if remote, err := repo.Remote(git.DefaultRemoteName); err == nil && len(remote.Config().URLs) > 0 {
		t.URL = remote.Config().URLs[0]
	}
	head, err := repo.Head()
	if err != nil {
		m.log.Error("Unable to resolve HEAD of tap.", zap.String("tap", name), zap.Error(err))
		return nil, fmt.Errorf("%w: tap %q has no HEAD commit: %v", ErrInvalidTap, name, err)
	}
	t.Commit = head.Hash().String()
	return t, nil
}
