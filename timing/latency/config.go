// Package latency holds the configurable per-op execution latencies
// consumed by insts.DefaultLatencies overrides and the processor's
// Config, plus JSON/TOML load and save.
package latency

import (
	"fmt"
	"os"

	"encoding/json"

	"github.com/pelletier/go-toml/v2"
)

// Config holds latency values for each instruction class the core
// dispatches on (spec.md §4.4).
type Config struct {
	// ALULatency is the execution latency for ADD/SUB. Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency" toml:"alu_latency"`

	// MultiplyLatency is the latency for MUL. Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency" toml:"multiply_latency"`

	// DivideLatency is the latency for DIV. Default: 5 cycles.
	DivideLatency uint64 `json:"divide_latency" toml:"divide_latency"`

	// LoadLatency is the latency for LD, absent any cache model.
	// Default: 2 cycles.
	LoadLatency uint64 `json:"load_latency" toml:"load_latency"`

	// StoreLatency is the latency for ST. Default: 2 cycles.
	StoreLatency uint64 `json:"store_latency" toml:"store_latency"`

	// BranchLatency is the execution latency for BEQ/BNE, not
	// including misprediction recovery cost. Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency" toml:"branch_latency"`

	// BranchMispredictPenalty is carried in the config file but not
	// read by the processor: a misprediction costs only the flush and
	// refetch themselves, with no extra cycles charged. Default: 3.
	BranchMispredictPenalty uint64 `json:"branch_mispredict_penalty" toml:"branch_mispredict_penalty"`

	// L1HitLatency is used instead of LoadLatency/StoreLatency on an L1
	// hit when the optional memcache annotation layer is enabled
	// (SPEC_FULL.md §6.4). Default: 2 cycles.
	L1HitLatency uint64 `json:"l1_hit_latency" toml:"l1_hit_latency"`

	// L1MissLatency is used instead of LoadLatency/StoreLatency on an L1
	// miss when the memcache layer is enabled. Default: 10 cycles.
	L1MissLatency uint64 `json:"l1_miss_latency" toml:"l1_miss_latency"`

	// ROBSize is the reorder buffer capacity. Default: 16 entries.
	ROBSize int `json:"rob_size" toml:"rob_size"`

	// DeadlockThreshold is the number of consecutive no-progress
	// cycles tolerated before ErrDeadlock is raised (spec.md §5).
	// Default: 30 cycles.
	DeadlockThreshold int `json:"deadlock_threshold" toml:"deadlock_threshold"`
}

// Default returns a Config with the values spec.md §4.1 names as defaults.
func Default() *Config {
	return &Config{
		ALULatency:              1,
		MultiplyLatency:         3,
		DivideLatency:           5,
		LoadLatency:             2,
		StoreLatency:            2,
		BranchLatency:           1,
		BranchMispredictPenalty: 3,
		L1HitLatency:            2,
		L1MissLatency:           10,
		ROBSize:                 16,
		DeadlockThreshold:       30,
	}
}

// LoadJSON loads a Config from a JSON file, starting from Default and
// overlaying any fields present in the file.
func LoadJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}
	return c, nil
}

// SaveJSON writes c to path as JSON.
func (c *Config) SaveJSON(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadTOML loads a Config from a TOML file, starting from Default and
// overlaying any fields present in the file. TOML is offered alongside
// JSON as a more hand-editable format for the CLI's config subcommands
// (SPEC_FULL.md §6.1/§6.2).
func LoadTOML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}
	return c, nil
}

// SaveTOML writes c to path as TOML.
func (c *Config) SaveTOML(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that every latency is positive and the structural
// parameters are usable.
func (c *Config) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.MultiplyLatency == 0 {
		return fmt.Errorf("multiply_latency must be > 0")
	}
	if c.DivideLatency == 0 {
		return fmt.Errorf("divide_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.ROBSize <= 0 {
		return fmt.Errorf("rob_size must be > 0")
	}
	if c.DeadlockThreshold <= 0 {
		return fmt.Errorf("deadlock_threshold must be > 0")
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
