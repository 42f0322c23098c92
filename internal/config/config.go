// Package config holds the dispatch policy knobs and the legacy
// service-category → skill-keyword table.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// DispatchPolicy carries the tunable constants of the optimizer. The
// defaults match long-standing production behavior; override via a YAML
// file pointed at by DISPATCH_POLICY_FILE.
type DispatchPolicy struct {
	// AverageSpeedMPH converts miles to travel minutes. Typical
	// local-service driving speed.
	AverageSpeedMPH float64 `yaml:"averageSpeedMph"`
	// WorkloadPenaltyPerJob is the miles-equivalent cost added per job a
	// worker holds over the day's average.
	WorkloadPenaltyPerJob float64 `yaml:"workloadPenaltyPerJob"`
	// MaxJobsPerWorker is a hard ceiling; a worker at the cap is unusable
	// for further auto-assignment in the same run.
	MaxJobsPerWorker int `yaml:"maxJobsPerWorker"`
	// DefaultStartHour is the hour (local to the plan day) the running
	// clock starts at when projecting flexible jobs.
	DefaultStartHour int `yaml:"defaultStartHour"`
	// AnchorBufferMinutes is the headroom required before a committed
	// appointment when inserting flexible jobs ahead of it.
	AnchorBufferMinutes int `yaml:"anchorBufferMinutes"`
	// MinJobDurationHours floors a job's duration when unset.
	MinJobDurationHours float64 `yaml:"minJobDurationHours"`
	// SkillKeywords maps a service category to skill names that qualify a
	// worker for legacy jobs with no explicit skill requirements. An empty
	// list means any worker qualifies.
	SkillKeywords map[string][]string `yaml:"skillKeywords"`
}

// Default returns the built-in policy.
func Default() DispatchPolicy {
	return DispatchPolicy{
		AverageSpeedMPH:       30,
		WorkloadPenaltyPerJob: 5,
		MaxJobsPerWorker:      12,
		DefaultStartHour:      8,
		AnchorBufferMinutes:   15,
		MinJobDurationHours:   1,
		SkillKeywords: map[string][]string{
			"plumbing":         {"Plumbing", "Pipe Fitting", "Drain Cleaning"},
			"electrical":       {"Electrical", "Wiring", "Panel Service"},
			"hvac":             {"HVAC", "Refrigeration", "Furnace Repair"},
			"tree service":     {"Tree Removal", "Chainsaw Operation", "Arborist"},
			"landscaping":      {"Landscaping", "Lawn Care", "Irrigation"},
			"pest control":     {"Pest Control", "Fumigation"},
			"appliance repair": {"Appliance Repair"},
			"cleaning":         {}, // any worker
			"handyman":         {}, // any worker
		},
	}
}

// Load reads a YAML policy file over the defaults. Unset fields keep
// their default values; a skillKeywords block replaces the whole table.
func Load(path string) (DispatchPolicy, error) {
	p := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("load dispatch policy: %w", err)
	}
	var over DispatchPolicy
	if err := yaml.Unmarshal(data, &over); err != nil {
		return p, fmt.Errorf("load dispatch policy: parse %s: %w", path, err)
	}
	if over.AverageSpeedMPH > 0 {
		p.AverageSpeedMPH = over.AverageSpeedMPH
	}
	if over.WorkloadPenaltyPerJob > 0 {
		p.WorkloadPenaltyPerJob = over.WorkloadPenaltyPerJob
	}
	if over.MaxJobsPerWorker > 0 {
		p.MaxJobsPerWorker = over.MaxJobsPerWorker
	}
	if over.DefaultStartHour > 0 {
		p.DefaultStartHour = over.DefaultStartHour
	}
	if over.AnchorBufferMinutes > 0 {
		p.AnchorBufferMinutes = over.AnchorBufferMinutes
	}
	if over.MinJobDurationHours > 0 {
		p.MinJobDurationHours = over.MinJobDurationHours
	}
	if over.SkillKeywords != nil {
		p.SkillKeywords = over.SkillKeywords
	}
	return p, nil
}

// FromEnv loads the policy named by DISPATCH_POLICY_FILE, or the defaults
// when the variable is unset.
func FromEnv() (DispatchPolicy, error) {
	path := os.Getenv("DISPATCH_POLICY_FILE")
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
