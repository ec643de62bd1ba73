package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFixtures reads a YAML file describing one or more simulated sites.
func LoadFixtures(path string) ([]SiteFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture file: %w", err)
	}
	var fixtures []SiteFixture
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("parse fixture file %s: %w", path, err)
	}
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("fixture file %s describes no sites", path)
	}
	return fixtures, nil
}
