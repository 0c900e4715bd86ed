// Package tableconf loads the table registry: which tables exist, where
// their inputs and outputs live, and the shapes (wanted columns, natural
// keys, length limits) every run is checked against.
package tableconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eunmann/s3-curate/pkg/dedup"
	"github.com/eunmann/s3-curate/pkg/membudget"
	"github.com/eunmann/s3-curate/pkg/parquetio"
	"github.com/eunmann/s3-curate/pkg/validate"
)

// Environment variables that override values from the file.
const (
	EnvBucket    = "S3CURATE_BUCKET"
	EnvKeyBudget = "S3CURATE_KEY_BUDGET"
)

// RunDatePlaceholder is substituted with the run date in input prefixes.
const RunDatePlaceholder = "{run_date}"

// ErrConfiguration matches ConfigError.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigError reports an invalid table declaration or a run whose request
// contradicts the declared shapes.
type ConfigError struct {
	Table  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Table == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: table %q: %s", e.Table, e.Reason)
}

// Is matches ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErr(table, format string, args ...any) error {
	return &ConfigError{Table: table, Reason: fmt.Sprintf(format, args...)}
}

// Mode selects the pipeline a table runs through.
type Mode string

const (
	// ModeRecords streams batches through cross-file dedup, validation and
	// the commit gate, writing one part per surviving batch.
	ModeRecords Mode = "records"
	// ModeValidateOnly skips dedup for tables unique by construction.
	ModeValidateOnly Mode = "validate_only"
	// ModeDimension collects the distinct values of a single column and
	// writes them as one sorted file.
	ModeDimension Mode = "dimension"
)

// Table declares one curated table.
type Table struct {
	Name string `yaml:"-"`

	Mode Mode `yaml:"mode"`

	// InputPrefix is the key prefix listed for input files. It may contain
	// {run_date}.
	InputPrefix string `yaml:"input_prefix"`

	// OutputPrefix is the table's output location, without run_date.
	OutputPrefix string `yaml:"output_prefix"`

	// PartitionByRunDate scopes the output to run_date=<date>/.
	PartitionByRunDate bool `yaml:"partition_by_run_date"`

	WantedColumns     []string            `yaml:"wanted_columns"`
	NaturalKey        []string            `yaml:"natural_key"`
	FieldLengthLimits map[string]int      `yaml:"field_length_limits"`
	NullPolicy        dedup.NullPolicy    `yaml:"null_policy"`
	Normalization     dedup.Normalization `yaml:"normalization"`

	// Extension filters input keys. Default: .parquet.
	Extension string `yaml:"extension"`
}

// Config is the loaded registry.
type Config struct {
	Bucket    string            `yaml:"bucket"`
	KeyBudget string            `yaml:"key_budget"`
	Tables    map[string]*Table `yaml:"tables"`
}

// Load reads, decodes and validates a YAML registry file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML registry. Unknown fields are rejected.
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, configErr("", "empty configuration")
		}
		return nil, &ConfigError{Reason: err.Error()}
	}
	for name, t := range cfg.Tables {
		if t == nil {
			return nil, configErr(name, "empty table declaration")
		}
		t.Name = name
		t.applyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (t *Table) applyDefaults() {
	if t.Mode == "" {
		t.Mode = ModeRecords
	}
	if t.Extension == "" {
		t.Extension = parquetio.Extension
	}
	if t.Normalization == "" {
		t.Normalization = dedup.NormalizeFold
	}
	if t.Mode == ModeDimension && t.NullPolicy == "" {
		t.NullPolicy = dedup.NullStrict
	}
}

// ApplyEnv overrides file values from the environment via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBucket); v != "" {
		c.Bucket = v
	}
	if v := getenv(EnvKeyBudget); v != "" {
		if _, err := parseKeyBudget(v); err != nil {
			return configErr("", "%s: %v", EnvKeyBudget, err)
		}
		c.KeyBudget = v
	}
	return nil
}

// KeyBudgetBytes parses KeyBudget. An unset budget returns 0, which callers
// size from system RAM; an explicit budget must be positive.
func (c *Config) KeyBudgetBytes() (uint64, error) {
	if c.KeyBudget == "" {
		return 0, nil
	}
	n, err := parseKeyBudget(c.KeyBudget)
	if err != nil {
		return 0, configErr("", "key_budget: %v", err)
	}
	return n, nil
}

func parseKeyBudget(s string) (uint64, error) {
	n, err := membudget.ParseHumanSize(s)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("size %q must be positive; leave it unset to size from system RAM", s)
	}
	return n, nil
}

// Validate checks every table declaration.
func (c *Config) Validate() error {
	if len(c.Tables) == 0 {
		return configErr("", "no tables declared")
	}
	if c.KeyBudget != "" {
		if _, err := c.KeyBudgetBytes(); err != nil {
			return err
		}
	}
	for _, name := range c.Names() {
		if err := c.Tables[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the declared table names sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Tables))
	for n := range c.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Table looks up a declared table.
func (c *Config) Table(name string) (*Table, error) {
	t, ok := c.Tables[name]
	if !ok {
		return nil, configErr(name, "not declared (known: %s)", strings.Join(c.Names(), ", "))
	}
	return t, nil
}

// Validate checks the table's declared shapes.
func (t *Table) Validate() error {
	switch t.Mode {
	case ModeRecords, ModeValidateOnly, ModeDimension:
	default:
		return configErr(t.Name, "unknown mode %q", t.Mode)
	}
	switch t.Normalization {
	case dedup.NormalizeFold, dedup.NormalizeTrim, dedup.NormalizeExact:
	default:
		return configErr(t.Name, "unknown normalization %q", t.Normalization)
	}

	if t.InputPrefix == "" {
		return configErr(t.Name, "input_prefix is required")
	}
	if strings.Trim(t.OutputPrefix, "/") == "" {
		return configErr(t.Name, "output_prefix is required")
	}
	if prefixesOverlap(t.InputPrefix, t.OutputPrefix) {
		return configErr(t.Name, "output_prefix %q overlaps input_prefix %q", t.OutputPrefix, t.InputPrefix)
	}
	if len(t.WantedColumns) == 0 {
		return configErr(t.Name, "wanted_columns is empty")
	}
	if dup := firstDuplicate(t.WantedColumns); dup != "" {
		return configErr(t.Name, "wanted column %q listed twice", dup)
	}

	if len(t.NaturalKey) == 0 {
		return configErr(t.Name, "natural_key is empty")
	}
	if dup := firstDuplicate(t.NaturalKey); dup != "" {
		return configErr(t.Name, "natural key column %q listed twice", dup)
	}
	for _, k := range t.NaturalKey {
		if !slices.Contains(t.WantedColumns, k) {
			return configErr(t.Name, "natural key column %q is not a wanted column", k)
		}
	}

	for col, limit := range t.FieldLengthLimits {
		if limit <= 0 {
			return configErr(t.Name, "field length limit for %q must be positive, got %d", col, limit)
		}
	}

	if t.Mode == ModeDimension {
		if len(t.WantedColumns) != 1 || len(t.NaturalKey) != 1 || t.WantedColumns[0] != t.NaturalKey[0] {
			return configErr(t.Name, "dimension tables have exactly one column, used as both wanted column and natural key")
		}
		switch t.NullPolicy {
		case dedup.NullStrict, dedup.NullDrop:
		default:
			return configErr(t.Name, "unknown null_policy %q", t.NullPolicy)
		}
	} else if t.NullPolicy != "" {
		return configErr(t.Name, "null_policy only applies to dimension tables")
	}
	return nil
}

// CheckKeyShape fails with a ConfigError if a run requests a natural key
// different from the declared one. An empty request accepts the declaration.
func (t *Table) CheckKeyShape(requested []string) error {
	if len(requested) == 0 || slices.Equal(requested, t.NaturalKey) {
		return nil
	}
	return configErr(t.Name, "requested natural key %v, declared %v", requested, t.NaturalKey)
}

// InputPrefixFor expands {run_date} in the input prefix.
func (t *Table) InputPrefixFor(runDate string) (string, error) {
	if strings.Contains(t.InputPrefix, RunDatePlaceholder) && runDate == "" {
		return "", configErr(t.Name, "input_prefix uses %s but no run date was given", RunDatePlaceholder)
	}
	return strings.ReplaceAll(t.InputPrefix, RunDatePlaceholder, runDate), nil
}

// NeedsRunDate reports whether a run of the table requires a run date.
func (t *Table) NeedsRunDate() bool {
	return t.PartitionByRunDate || strings.Contains(t.InputPrefix, RunDatePlaceholder)
}

// Schema returns the validation schema for the table.
func (t *Table) Schema() validate.Schema {
	return validate.Schema{
		Wanted:        t.WantedColumns,
		KeyColumns:    t.NaturalKey,
		Limits:        t.FieldLengthLimits,
		Normalization: t.Normalization,
	}
}

// prefixesOverlap reports whether listing the input could return keys under
// the output partition, or the reverse. Only the input prefix up to its
// {run_date} placeholder is compared, since any date may be substituted.
func prefixesOverlap(input, output string) bool {
	in, _, _ := strings.Cut(input, RunDatePlaceholder)
	out := strings.Trim(output, "/") + "/"
	return strings.HasPrefix(in, out) || strings.HasPrefix(out, in)
}

func firstDuplicate(cols []string) string {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, ok := seen[c]; ok {
			return c
		}
		seen[c] = struct{}{}
	}
	return ""
}
