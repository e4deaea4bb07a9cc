package parsers

import (
	"context"
	"io"

	"github.com/spf13/afero"

	"nexledger-reconciler/internal/models"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

const sniffBytes = 512

// Registry selects and runs the parser for a statement file
type Registry struct {
	fs      afero.Fs
	config  *ParseConfig
	parsers map[models.SourceFormat]Parser
	logger  logger.Logger
}

// NewRegistry creates a registry with the CSV, OFX and PDF parsers
func NewRegistry(fs afero.Fs, config *ParseConfig, log logger.Logger) *Registry {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	r := &Registry{
		fs:      fs,
		config:  config,
		parsers: make(map[models.SourceFormat]Parser),
		logger:  log.WithComponent("parsers"),
	}
	r.Register(NewCSVParser(fs, config, log))
	r.Register(NewOFXParser(fs, config, log))
	r.Register(NewPDFParser(fs, config, log))
	return r
}

// Register adds or replaces the parser for its format
func (r *Registry) Register(p Parser) {
	r.parsers[p.Format()] = p
}

// Config returns the parse configuration in use
func (r *Registry) Config() *ParseConfig {
	return r.config
}

// Detect resolves the format of path, sniffing content when configured
func (r *Registry) Detect(path string) (models.SourceFormat, error) {
	if !r.config.SniffContent {
		return Detect(path)
	}
	f, err := r.fs.Open(path)
	if err != nil {
		return Detect(path)
	}
	defer f.Close()

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Detect(path)
	}
	return DetectContent(path, head[:n])
}

// Parse detects the format of path and runs the matching parser
func (r *Registry) Parse(ctx context.Context, path string) (*Result, error) {
	format, err := r.Detect(path)
	if err != nil {
		return nil, err
	}
	p, ok := r.parsers[format]
	if !ok {
		return nil, errors.UnsupportedFormatError(path, string(format))
	}

	var result *Result
	err = logger.TimedOperation("parse "+string(format), r.logger.WithField("file", path), func() error {
		var perr error
		result, perr = p.Parse(ctx, path)
		return perr
	})
	return result, err
}
