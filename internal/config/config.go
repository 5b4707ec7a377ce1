// Package config loads the optional workpipe.yaml project file.
//
// Every field has a default, so a missing file is not an error. Command
// flags override whatever the file sets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the project file looked up in the source directory.
const FileName = "workpipe.yaml"

// Defaults.
const (
	DefaultRunsOn    = "ubuntu-latest"
	DefaultOutputDir = ".github/workflows"
	DefaultDatabase  = ".workpipe/state.db"
	DefaultQuota     = 100
)

var (
	configValidate *validator.Validate
	namespaceRE    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

func init() {
	configValidate = validator.New()
	// Artifact names are built from the namespace, so it must be a safe
	// path segment.
	_ = configValidate.RegisterValidation("namespace", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || namespaceRE.MatchString(s)
	})
}

// Config is the project configuration.
type Config struct {
	// Namespace prefixes every state artifact name. Empty means the
	// workflow name.
	Namespace string `yaml:"namespace" validate:"max=64,namespace"`
	// RunsOn is used for generated phase units.
	RunsOn string `yaml:"runs_on" validate:"required"`
	// OutputDir receives the generated workflow files.
	OutputDir string `yaml:"output_dir" validate:"required"`
	// Format is the default output format of compile.
	Format string `yaml:"format" validate:"oneof=yaml json"`
	Engine Engine `yaml:"engine"`
}

// Engine configures the protocol emulator.
type Engine struct {
	Database string `yaml:"database" validate:"required"`
	// Quota caps the invocations one chain may start.
	Quota int `yaml:"quota" validate:"gte=1,lte=10000"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RunsOn:    DefaultRunsOn,
		OutputDir: DefaultOutputDir,
		Format:    "yaml",
		Engine:    Engine{Database: DefaultDatabase, Quota: DefaultQuota},
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Decode reads a configuration from r over the defaults.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir reads the project file of a source directory.
func LoadDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}
