package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleSpec is one routing rule as written in the rules file. A rule matches
// when the question contains any keyword or matches any pattern.
type RuleSpec struct {
	Tool     string   `yaml:"tool"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

type rulesFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// LoadRules reads routing rules from a YAML file.
func LoadRules(path string) ([]RuleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]RuleSpec, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	for i, r := range f.Rules {
		if r.Tool == "" {
			return nil, fmt.Errorf("rule %d: missing tool", i)
		}
		if len(r.Keywords) == 0 && len(r.Patterns) == 0 {
			return nil, fmt.Errorf("rule %d (%s): needs keywords or patterns", i, r.Tool)
		}
	}
	return f.Rules, nil
}
