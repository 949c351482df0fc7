package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"st-telemetry/gateway/internal/domain"
)

// RuleFile is the YAML shape for seeding alert rules at startup.
//
// Example:
//
//	rules:
//	  - name: Overboost
//	    pid: BOOST
//	    condition: gt
//	    threshold: 20.0
//	    notify: true
type RuleFile struct {
	Rules []RuleConfig `yaml:"rules"`
}

type RuleConfig struct {
	Name      string  `yaml:"name"`
	PID       string  `yaml:"pid"`
	Condition string  `yaml:"condition"`
	Threshold float64 `yaml:"threshold"`
	Notify    bool    `yaml:"notify"`
}

// LoadRules parses a YAML rule seed file. Every rule is validated; a bad
// condition or missing field fails the whole load so misconfiguration is
// reported once, up front.
func LoadRules(path string) ([]domain.AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses and validates YAML rule definitions.
func ParseRules(data []byte) ([]domain.AlertRule, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	rules := make([]domain.AlertRule, 0, len(rf.Rules))
	for i, rc := range rf.Rules {
		if rc.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if rc.PID == "" {
			return nil, fmt.Errorf("rule %q: pid is required", rc.Name)
		}
		cond, err := domain.ParseCondition(rc.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
		}
		rules = append(rules, domain.AlertRule{
			Name:      rc.Name,
			PID:       rc.PID,
			Condition: cond,
			Threshold: rc.Threshold,
			Enabled:   true,
			Notify:    rc.Notify,
		})
	}
	return rules, nil
}
