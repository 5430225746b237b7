package logger

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Domain uint8

const (
	UnknownDomain Domain = iota
	AllDomain
	InitDomain
	CLIDomain
	FormulaDomain
	TapDomain
	FileSystemDomain
	GCSDomain
	GitHubDomain
	HTTPSDomain
	S3Domain
	VerifyDomain
	InstallDomain
)

var (
	domainFromString = map[string]Domain{
		"all":     AllDomain,
		"init":    InitDomain,
		"cli":     CLIDomain,
		"formula": FormulaDomain,
		"tap":     TapDomain,
		"fs":      FileSystemDomain,
		"gcs":     GCSDomain,
		"github":  GitHubDomain,
		"https":   HTTPSDomain,
		"s3":      S3Domain,
		"verify":  VerifyDomain,
		"install": InstallDomain,
	}

	stringFromDomain = map[Domain]string{}
)

func init() {
	for s, d := range domainFromString {
		stringFromDomain[d] = s
	}
}

// Domains returns the names that are accepted by SetDomainLevel, sorted alphabetically.
func Domains() []string {
	var names []string
	for n := range domainFromString {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type Builder struct {
	log          *zap.Logger
	defaultLevel zapcore.Level
	domainLevels map[Domain]zapcore.Level
	cache        map[Domain]*zap.Logger
}

func NewBuilder(out zapcore.WriteSyncer) *Builder {
	enc := newEncoder()
	return &Builder{
		log:          zap.New(zapcore.NewCore(enc, out, zapcore.DebugLevel)),
		defaultLevel: zap.InfoLevel,
		domainLevels: map[Domain]zapcore.Level{},
		cache:        map[Domain]*zap.Logger{},
	}
}

// NewTestBuilder returns a builder whose loggers discard all output.
func NewTestBuilder() *Builder {
	return NewBuilder(zapcore.AddSync(io.Discard))
}

func (b *Builder) SetDomainLevel(domain string, level zapcore.Level) {
	d := domainFromString[domain]
	switch d {
	case UnknownDomain:
		b.log.Warn("Unrecognised logger domain.", zap.String("domain", domain), zap.Strings("known-domains", Domains()))
	case AllDomain:
		b.defaultLevel = level
	case InitDomain, CLIDomain, FormulaDomain, TapDomain, FileSystemDomain, GCSDomain, GitHubDomain, HTTPSDomain, S3Domain,
		VerifyDomain, InstallDomain:
		b.domainLevels[d] = level
	default:
		panic(fmt.Sprintf("unexpected domain %q", d))
	}
	// Loggers handed out before the level change keep their old level.
	b.cache = map[Domain]*zap.Logger{}
}

func (b *Builder) Domain(domain Domain) *zap.Logger {
	if _, ok := b.cache[domain]; !ok {
		targetLevel := b.defaultLevel
		if lvl, ok := b.domainLevels[domain]; ok {
			targetLevel = lvl
		}
		b.cache[domain] = b.log.Named(stringFromDomain[domain]).WithOptions(zap.IncreaseLevel(targetLevel))
	}
	return b.cache[domain]
}

// Enabled reports whether the given domain would emit entries at the given level.
func (b *Builder) Enabled(domain Domain, level zapcore.Level) bool {
	return b.Domain(domain).Core().Enabled(level)
}
