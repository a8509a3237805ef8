// Package config decodes and validates the DAP launch/attach arguments
// the façade receives, the way the teacher's internal/errors validation
// helpers check CLI/launch input before acting on it.
package config

import (
	"encoding/json"
	"net/url"

	"github.com/tmc/dapcore/internal/codes"
)

// LaunchConfig is the subset of a DAP launch/attach request's arguments
// the adapter core understands. NewSession reads sourceMaps, smartStep,
// the skip-file lists, and the line/column base from it. webRoot is
// validated but not applied: the session uses identity path and
// source-map transformers. The attach/launch fields are decoded and
// validated only; cmd/dapserve brings up the debuggee from its own
// flags.
type LaunchConfig struct {
	// Request is "launch" or "attach"; Attach requires Port and skips
	// spawning a debuggee.
	Request string `json:"request"`

	// Attach settings.
	Port int    `json:"port"`
	Host string `json:"address"`

	// Launch settings.
	Program    string `json:"program"`
	Cwd        string `json:"cwd"`
	DebugPort  int    `json:"-"`

	// Shared settings.
	WebRoot         string   `json:"webRoot"`
	SourceMaps      bool     `json:"sourceMaps"`
	SkipFiles       []string `json:"skipFiles"`
	SkipFileRegExps []string `json:"skipFileRegExps"`
	SmartStep       bool     `json:"smartStep"`
	PathFormat      string   `json:"pathFormat"`

	LinesStartAt1   bool `json:"linesStartAt1"`
	ColumnsStartAt1 bool `json:"columnsStartAt1"`
}

// Decode unmarshals a raw DAP request-arguments payload into a
// LaunchConfig with the teacher's Request field populated from which
// verb supplied it.
func Decode(request string, raw json.RawMessage) (*LaunchConfig, error) {
	cfg := &LaunchConfig{Request: request, SourceMaps: true, PathFormat: "path"}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, codes.Wrap(err, codes.PathFormatUnsupported, "decoding launch arguments")
		}
	}
	cfg.Request = request
	return cfg, nil
}

// Validator accumulates validation errors the way the teacher's
// internal/errors.Validator does, so one Validate pass can report every
// problem instead of failing at the first one.
type Validator struct {
	errs []error
}

// NewValidator creates an empty Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Add records err if non-nil.
func (v *Validator) Add(err error) {
	if err != nil {
		v.errs = append(v.errs, err)
	}
}

// HasErrors reports whether any error has been recorded.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

// First returns the first recorded error, or nil.
func (v *Validator) First() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs[0]
}

// Errors returns every recorded error.
func (v *Validator) Errors() []error {
	return v.errs
}

// Validate checks a LaunchConfig against spec §6's capability
// requirements: pathFormat must be "path", and an attach request must
// carry a usable port.
func Validate(cfg *LaunchConfig) *Validator {
	v := NewValidator()

	if cfg.PathFormat != "" && cfg.PathFormat != "path" {
		v.Add(codes.Newf(codes.PathFormatUnsupported, "unsupported pathFormat %q, only \"path\" is supported", cfg.PathFormat))
	}

	if cfg.Request == "attach" && cfg.Port <= 0 {
		v.Add(codes.New(codes.MissingAttachPort, "attach request requires a port"))
	}

	if cfg.WebRoot != "" {
		if _, err := url.Parse(cfg.WebRoot); err != nil {
			v.Add(codes.Wrapf(err, codes.PathFormatUnsupported, "invalid webRoot %q", cfg.WebRoot))
		}
	}

	return v
}
