// Package config decodes the recognized option set of §6 from a
// structured document (YAML/JSON/TOML, whichever viper finds) into a
// typed Config, the way the teacher decodes its own manifests:
// github.com/spf13/viper for file discovery/env binding plus
// github.com/go-viper/mapstructure/v2 for the strict decode step.
package config

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	nferrors "github.com/DonAurelio/nflows/internal/errors"
)

// SupportedSchema is the semver constraint this binary accepts for
// the config document's schema_version field, reusing
// Masterminds/semver the way the teacher's package manager checks
// dependency version constraints.
const SupportedSchema = ">= 1.0.0, < 2.0.0"

// DistanceMatrices names the two distance-matrix text files of §6.
type DistanceMatrices struct {
	LatencyNs     string `mapstructure:"latency_ns"`
	BandwidthGbps string `mapstructure:"bandwidth_gbps"`
}

// Config is the typed form of the §6 recognized option set, plus the
// ambient additions of SPEC_FULL.md (schema_version, report export
// address, mapper backoff).
type Config struct {
	SchemaVersion string `mapstructure:"schema_version"`

	DagFile string `mapstructure:"dag_file"`

	FlopsPerCycle       float64  `mapstructure:"flops_per_cycle"`
	ClockFrequencyType  string   `mapstructure:"clock_frequency_type"`
	ClockFrequencyHz    float64  `mapstructure:"clock_frequency_hz"`
	ClockFrequenciesHz  []float64 `mapstructure:"clock_frequencies_hz"`

	DistanceMatrices DistanceMatrices `mapstructure:"distance_matrices"`

	CoreAvailMask string `mapstructure:"core_avail_mask"`
	CoreAvailIDs  []int  `mapstructure:"core_avail_ids"`

	SchedulerType   string   `mapstructure:"scheduler_type"`
	SchedulerParams []string `mapstructure:"scheduler_params"`

	MapperType               string `mapstructure:"mapper_type"`
	MapperMemPolicyType      string `mapstructure:"mapper_mem_policy_type"`
	MapperMemBindNumaNodeIDs []int  `mapstructure:"mapper_mem_bind_numa_node_ids"`
	MapperBackoffMs          int    `mapstructure:"mapper_backoff_ms"`

	OutFileName      string `mapstructure:"out_file_name"`
	ReportExportAddr string `mapstructure:"report_export_addr"`
}

// Load reads the config document at path, applies the NFLOWS_OUT_FILE
// environment override, validates the schema version, and decodes
// into a Config via mapstructure.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("NFLOWS")
	v.AutomaticEnv()
	_ = v.BindEnv("out_file_name", "NFLOWS_OUT_FILE")

	v.SetDefault("flops_per_cycle", 1.0)
	v.SetDefault("mapper_backoff_ms", 5000)
	v.SetDefault("schema_version", "1.0.0")

	if err := v.ReadInConfig(); err != nil {
		return nil, nferrors.FileIO("cannot read config file", map[string]interface{}{"path": path, "error": err.Error()})
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, nferrors.InvalidConfig("cannot build config decoder", map[string]interface{}{"error": err.Error()})
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, nferrors.InvalidConfig("cannot decode config document", map[string]interface{}{"path": path, "error": err.Error()})
	}

	if err := cfg.ValidateSchema(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateSchema checks the config's schema_version against
// SupportedSchema.
func (c *Config) ValidateSchema() error {
	v, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return nferrors.InvalidConfig("schema_version is not valid semver", map[string]interface{}{"schema_version": c.SchemaVersion})
	}
	constraint, err := semver.NewConstraint(SupportedSchema)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return nferrors.InvalidConfig("unsupported schema_version", map[string]interface{}{
			"schema_version": c.SchemaVersion, "supported": SupportedSchema,
		})
	}
	return nil
}

// ParseCoreAvailMask decodes the §6 hex bitmask into an ordered
// availability bitmap: bit i set ⇒ core i available. core_count is
// the position of the highest set bit plus one.
func ParseCoreAvailMask(hexMask string) ([]bool, error) {
	mask, err := strconv.ParseUint(strings.TrimPrefix(hexMask, "0x"), 16, 64)
	if err != nil {
		return nil, nferrors.InvalidConfig("core_avail_mask is not a valid hex integer", map[string]interface{}{"value": hexMask})
	}

	coreCount := 0
	for tmp := mask; tmp != 0; tmp >>= 1 {
		coreCount++
	}

	avail := make([]bool, coreCount)
	for i := 0; i < coreCount; i++ {
		if mask&(1<<uint(i)) != 0 {
			avail[i] = true
		}
	}
	return avail, nil
}

// CoreAvailability resolves the configured core-availability bitmap,
// preferring the explicit core_avail_ids list when both are set.
func (c *Config) CoreAvailability() ([]bool, error) {
	if len(c.CoreAvailIDs) > 0 {
		max := 0
		for _, id := range c.CoreAvailIDs {
			if id+1 > max {
				max = id + 1
			}
		}
		avail := make([]bool, max)
		for _, id := range c.CoreAvailIDs {
			avail[id] = true
		}
		return avail, nil
	}
	if c.CoreAvailMask != "" {
		return ParseCoreAvailMask(c.CoreAvailMask)
	}
	return nil, nferrors.InvalidConfig("neither core_avail_mask nor core_avail_ids is set", nil)
}

// SchedulerParamMap parses the "key=value" scheduler_params strings of
// §6 into a map, matching the original's parameter parsing in
// runtime_initialize.
func (c *Config) SchedulerParamMap() map[string]string {
	out := make(map[string]string, len(c.SchedulerParams))
	for _, param := range c.SchedulerParams {
		if idx := strings.IndexByte(param, '='); idx >= 0 {
			out[param[:idx]] = param[idx+1:]
		}
	}
	return out
}
