package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/Helcaraxan/formulary/internal/archive"
	"github.com/Helcaraxan/formulary/internal/backend"
	"github.com/Helcaraxan/formulary/internal/formula"
	"github.com/Helcaraxan/formulary/internal/install"
	"github.com/Helcaraxan/formulary/internal/logger"
	"github.com/Helcaraxan/formulary/internal/tool"
	"github.com/Helcaraxan/formulary/internal/verify"
)

// pipeline obtains verified artifact content. The local download cache is consulted first, then the
// optional remote cache and finally the artifact's source.
type pipeline struct {
	log         *zap.Logger
	verifyLog   *zap.Logger
	opts        *CommonOpts
	local       *backend.FileSystem
	remote      backend.Storage
	readOnly    bool
	sourceOpts  backend.Options
	requireSigs bool
}

func newPipeline(ctx context.Context, o *CommonOpts) (*pipeline, error) {
	p := &pipeline{
		log:       o.Log,
		verifyLog: o.LogBuilder.Domain(logger.VerifyDomain),
		opts:      o,
		local:     backend.NewFileSystem(o.LogBuilder, osfs.New(o.Config.DownloadCacheDir())),
		sourceOpts: backend.Options{
			GitHubBaseURL: o.Config.GitHubBaseURL,
			Progress:      o.Err,
		},
		requireSigs: o.Config.RequireSignatures,
	}
	if o.Config.RemoteCache != nil {
		remote, err := backend.NewCache(ctx, o.LogBuilder, o.Config.RemoteCache)
		if err != nil {
			return nil, err
		}
		p.remote = remote
		p.readOnly = o.Config.RemoteCache.ReadOnly
	}
	return p, nil
}

// resolve looks up the formula and resolves it for the given target without touching the
// filesystem beyond reading formula files.
func (p *pipeline) resolve(ref string, platform tool.Platform, arch tool.Arch) (*formula.Descriptor, formula.Artifact, error) {
	d, err := p.opts.registry().Lookup(ref)
	if err != nil {
		return nil, formula.Artifact{}, err
	}
	a, err := d.Resolve(platform, arch)
	if err != nil {
		p.log.Error("Formula can not be resolved for the target platform.", zap.String("formula", ref), zap.Error(err))
		return nil, formula.Artifact{}, err
	}
	if a.SignatureURL == "" && p.requireSigs {
		p.log.Error("Formula is not signed but signatures are required.", zap.Stringer("formula", d))
		return nil, formula.Artifact{}, fmt.Errorf("%w: %s", ErrSignatureRequired, d)
	}
	return d, a, nil
}

func (p *pipeline) fetch(ctx context.Context, a formula.Artifact) ([]byte, error) {
	key := a.CacheKey()
	log := p.log.With(zap.Stringer("binary", a.Binary), zap.String("cache-key", key))

	if raw, ok := p.fromCache(ctx, log, p.local, key, a); ok {
		log.Debug("Using artifact from the local download cache.")
		return raw, nil
	}

	if p.remote != nil {
		if raw, ok := p.fromCache(ctx, log, p.remote, key, a); ok {
			log.Debug("Using artifact from the remote cache.", zap.Stringer("remote", p.remote))
			if err := p.local.Store(ctx, key, raw); err != nil {
				log.Warn("Failed to add artifact to the local download cache.", zap.Error(err))
			}
			return raw, nil
		}
	}

	raw, err := p.fromSource(ctx, log, a)
	if err != nil {
		return nil, err
	}

	if err = p.local.Store(ctx, key, raw); err != nil {
		log.Warn("Failed to add artifact to the local download cache.", zap.Error(err))
	}
	if p.remote != nil && !p.readOnly {
		if err = p.remote.Store(ctx, key, raw); err != nil {
			log.Warn("Failed to add artifact to the remote cache.", zap.Stringer("remote", p.remote), zap.Error(err))
		}
	}
	return raw, nil
}

// fromCache returns cached content only if it passes verification. Corrupted local entries are
// discarded.
func (p *pipeline) fromCache(ctx context.Context, log *zap.Logger, cache backend.Storage, key string, a formula.Artifact) ([]byte, bool) {
	raw, err := cache.Fetch(ctx, key)
	if errors.Is(err, backend.ErrNotExist) {
		return nil, false
	} else if err != nil {
		log.Warn("Unable to read from cache.", zap.Stringer("cache", cache), zap.Error(err))
		return nil, false
	}

	if err = verify.Content(p.verifyLog, raw, a.Checksum); err != nil {
		log.Warn("Discarding corrupted cache entry.", zap.Stringer("cache", cache), zap.Error(err))
		if cache == backend.Storage(p.local) {
			_ = p.local.Remove(key)
		}
		return nil, false
	}
	return raw, true
}

func (p *pipeline) fromSource(ctx context.Context, log *zap.Logger, a formula.Artifact) ([]byte, error) {
	source, key, err := backend.ForURL(ctx, p.opts.LogBuilder, a.URL, p.sourceOpts)
	if err != nil {
		log.Error("Unable to access artifact source.", zap.String("url", a.URL), zap.Error(err))
		return nil, err
	}

	log.Info("Downloading artifact.", zap.String("url", a.URL))
	raw, err := source.Fetch(ctx, key)
	if err != nil {
		log.Error("Failed to download artifact.", zap.String("url", a.URL), zap.Error(err))
		return nil, err
	}

	if err = verify.Content(p.verifyLog, raw, a.Checksum); err != nil {
		return nil, err
	}
	if err = p.checkSignature(ctx, log, a, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (p *pipeline) checkSignature(ctx context.Context, log *zap.Logger, a formula.Artifact, raw []byte) error {
	if a.SignatureURL == "" {
		return nil
	}

	source, key, err := backend.ForURL(ctx, p.opts.LogBuilder, a.SignatureURL, backend.Options{GitHubBaseURL: p.sourceOpts.GitHubBaseURL})
	if err != nil {
		return err
	}
	sig, err := source.Fetch(ctx, key)
	if err != nil {
		log.Error("Failed to download artifact signature.", zap.String("url", a.SignatureURL), zap.Error(err))
		return err
	}
	return verify.Signature(p.verifyLog, raw, sig, a.PublicKey)
}

// installFormula runs the whole resolve, fetch, verify, extract and install sequence for one formula.
func (p *pipeline) installFormula(ctx context.Context, ref string, platform tool.Platform, arch tool.Arch) (*install.Receipt, error) {
	_, a, err := p.resolve(ref, platform, arch)
	if err != nil {
		return nil, err
	}

	raw, err := p.fetch(ctx, a)
	if err != nil {
		return nil, err
	}

	files, err := archive.Extract(p.log, raw, a.FileName(), a.Paths())
	if err != nil {
		return nil, err
	}
	return p.opts.installer().Install(ctx, a, files)
}
