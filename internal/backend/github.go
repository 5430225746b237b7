package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/Helcaraxan/formulary/internal/logger"
)

// GitHub serves the assets of a repository's releases. Keys are of the form '<tag>/<asset-name>'.
type GitHub struct {
	log     *zap.Logger
	timeout time.Duration
	client  *github.Client

	Owner string
	Repo  string
}

// NewGitHub returns a read-only storage for the releases of the given repository. A token in the
// GITHUB_TOKEN environment variable is used to authenticate. A non-empty baseURL points the client
// at a GitHub Enterprise instance.
func NewGitHub(logBuilder *logger.Builder, owner string, repo string, baseURL string) (*GitHub, error) {
	log := logBuilder.Domain(logger.GitHubDomain).With(zap.String("repository", owner+"/"+repo))

	c := github.NewClient(http.DefaultClient)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c = c.WithAuthToken(token)
	}
	if baseURL != "" {
		var err error
		if c, err = c.WithEnterpriseURLs(baseURL, baseURL); err != nil {
			log.Error("Invalid GitHub Enterprise URL.", zap.String("base-url", baseURL), zap.Error(err))
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", baseURL, err)
		}
	}

	return &GitHub{
		log:     log,
		timeout: 10 * time.Minute,
		client:  c,
		Owner:   owner,
		Repo:    repo,
	}, nil
}

func (s *GitHub) String() string {
	return "github://" + s.Owner + "/" + s.Repo
}

func (s *GitHub) Fetch(ctx context.Context, key string) ([]byte, error) {
	log := s.log.With(zap.String("key", key))

	tag, assetName, ok := strings.Cut(key, "/")
	if !ok || tag == "" || assetName == "" {
		log.Error("Key does not specify both a release tag and an asset name.")
		return nil, fetchError(key, errors.New("key is not of the form '<tag>/<asset>'"))
	}
	log = log.With(zap.String("tag", tag), zap.String("asset", assetName))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, _, err := s.client.Repositories.GetReleaseByTag(ctx, s.Owner, s.Repo, tag)
	if err != nil {
		if isNotFound(err) {
			log.Debug("Repository has no release for tag.")
			return nil, fetchError(key, ErrNotExist)
		}
		log.Error("Unable to retrieve release.", zap.Error(err))
		return nil, fetchError(key, err)
	}

	var asset *github.ReleaseAsset
	for _, a := range release.Assets {
		if a.GetName() == assetName {
			asset = a
			break
		}
	}
	if asset == nil {
		log.Debug("Release does not have the requested asset.")
		return nil, fetchError(key, ErrNotExist)
	}

	dl, _, err := s.client.Repositories.DownloadReleaseAsset(ctx, s.Owner, s.Repo, asset.GetID(), http.DefaultClient)
	if err != nil {
		log.Error("Failed to download release asset.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	defer func() { _ = dl.Close() }()

	raw, err := io.ReadAll(dl)
	if err != nil {
		log.Error("Failed to read release asset content.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	log.Debug("Finished downloading release asset.", zap.Int("size", len(raw)))
	return raw, nil
}

func (s *GitHub) Store(_ context.Context, key string, _ []byte) error {
	s.log.Error("Cannot perform 'store' operations on a GitHub backend.", zap.String("key", key))
	return ErrReadOnly
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
