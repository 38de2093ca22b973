package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/recipients/internal/address"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration.
type Config struct {
	Database    string     `json:"database"`
	LogLevel    string     `json:"log_level"`
	MetricsFile string     `json:"metrics_file,omitempty"`
	Self        SelfConfig `json:"self,omitempty"`
}

// SelfConfig holds the local user's identifiers in string form.
type SelfConfig struct {
	ACI      string `json:"aci,omitempty"`
	PNI      string `json:"pni,omitempty"`
	Number   string `json:"number,omitempty"`
	Username string `json:"username,omitempty"`
}

// LoadError reports an unreadable or invalid configuration file.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %s", e.Message)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := decode("", nil)
	if err != nil {
		// The embedded schema has defaults for every required field.
		panic(err)
	}
	return cfg
}

// Load reads and validates the CUE file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "read failed", Err: err}
	}
	return decode(path, data)
}

// Parse validates CUE source held in memory. name is used in error messages.
func Parse(name string, src []byte) (*Config, error) {
	return decode(name, src)
}

func decode(name string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Message: "invalid embedded schema", Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	if src == nil {
		src = []byte("{}")
	}
	user := ctx.CompileBytes(src, cue.Filename(name))
	if err := user.Err(); err != nil {
		return nil, &LoadError{Path: name, Message: details(err), Err: err}
	}
	v := def.Unify(user)

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Path: name, Message: details(err), Err: err}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, &LoadError{Path: name, Message: "decode failed", Err: err}
	}
	return &cfg, nil
}

func details(err error) string {
	return cueerrors.Details(err, nil)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SelfAddress parses the configured local address.
// Returns the zero Address if no identifier is configured.
func (c *Config) SelfAddress() (address.Address, error) {
	s := c.Self
	if s.ACI == "" && s.PNI == "" && s.Number == "" {
		return address.Address{}, nil
	}
	addr, err := address.Parse(s.ACI, s.PNI, s.Number, s.Username)
	if err != nil {
		return address.Address{}, fmt.Errorf("config self: %w", err)
	}
	return addr, nil
}
