package driver

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Helcaraxan/formulary/internal/config"
	"github.com/Helcaraxan/formulary/internal/formula"
	"github.com/Helcaraxan/formulary/internal/install"
	"github.com/Helcaraxan/formulary/internal/logger"
)

var ErrSignatureRequired = errors.New("formula does not declare a signature but signatures are required")

type CommonOpts struct {
	LogBuilder *logger.Builder
	Log        *zap.Logger
	Config     *config.Global
	Verbose    []string
	Prefix     string

	// Command output. Logs and progress are written to Err.
	Out io.Writer
	Err io.Writer
}

func NewCommonOpts() *CommonOpts {
	return &CommonOpts{
		LogBuilder: logger.NewBuilder(os.Stderr),
		Config:     &config.Global{},
		Out:        os.Stdout,
		Err:        os.Stderr,
	}
}

func (c *CommonOpts) Parse() error {
	for _, domain := range c.Verbose {
		c.LogBuilder.SetDomainLevel(domain, zapcore.DebugLevel)
	}
	c.Log = c.LogBuilder.Domain(logger.CLIDomain)

	if err := config.Parse(c.LogBuilder.Domain(logger.InitDomain), c.Config); err != nil {
		return err
	}
	if c.Prefix != "" {
		abs, err := filepath.Abs(c.Prefix)
		if err != nil {
			c.Log.Error("Invalid prefix.", zap.String("prefix", c.Prefix), zap.Error(err))
			return err
		}
		c.Config.Prefix = abs
	}
	return nil
}

func (c *CommonOpts) registry() *formula.Registry {
	tapDir := ""
	if !c.Config.DisableTaps {
		tapDir = c.Config.TapDir()
	}
	return formula.NewRegistry(c.LogBuilder.Domain(logger.FormulaDomain), c.Config.FormulaDirs, tapDir)
}

func (c *CommonOpts) installer() *install.Installer {
	return install.New(c.LogBuilder.Domain(logger.InstallDomain), c.Config.BinDir(), c.Config.ReceiptDir())
}
