package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGitHub(t *testing.T) {
	t.Parallel()

	strPtr := func(s string) *string {
		c := s
		return &c
	}
	strInt64 := func(i int64) *int64 {
		c := i
		return &c
	}

	fakeGH := mock.NewMockedHTTPClient(
		mock.WithRequestMatchHandler(
			mock.GetReposReleasesTagsByOwnerByRepoByTag,
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/v1.2.3") {
					w.WriteHeader(http.StatusNotFound)
					_, _ = w.Write([]byte(`{"message":"Not Found"}`))
					return
				}
				_ = json.NewEncoder(w).Encode(github.RepositoryRelease{
					TagName: strPtr("v1.2.3"),
					Assets: []*github.ReleaseAsset{
						{
							ID:   strInt64(123456),
							Name: strPtr("test-tool_v1.2.3_linux_x86_64.tar.gz"),
						},
					},
				})
			}),
		),
		mock.WithRequestMatchHandler(
			mock.GetReposReleasesAssetsByOwnerByRepoByAssetId,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(stdTestBinaryContent)
			}),
		),
	)

	gh := &GitHub{
		log:     zap.NewNop(),
		timeout: 10 * time.Second,
		client:  github.NewClient(fakeGH),
		Owner:   "foo",
		Repo:    "bar",
	}
	assert.Equal(t, "github://foo/bar", gh.String())

	b, err := gh.Fetch(context.Background(), "v1.2.3/test-tool_v1.2.3_linux_x86_64.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, stdTestBinaryContent, b)

	_, err = gh.Fetch(context.Background(), "v1.2.3/test-tool_v1.2.3_darwin_arm64.tar.gz")
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.True(t, errors.Is(err, ErrNotExist))

	_, err = gh.Fetch(context.Background(), "v9.9.9/test-tool_v9.9.9_linux_x86_64.tar.gz")
	assert.True(t, errors.Is(err, ErrNotExist))

	_, err = gh.Fetch(context.Background(), "no-asset")
	assert.True(t, errors.Is(err, ErrFetchFailed))

	err = gh.Store(context.Background(), "v1.2.3/test-tool", stdTestBinaryContent)
	assert.True(t, errors.Is(err, ErrReadOnly))
}
