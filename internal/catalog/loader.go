package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk catalog shape. Deployments override the built-in
// tables by pointing GRADENORM_CATALOG_PATH at a file like:
//
//	systems:
//	  - id: ARG_1_10
//	    kind: numeric
//	    min: 1
//	    max: 10
//	    pass_threshold: 4
//	countries:
//	  ARG: [ARG_1_10]
type fileSchema struct {
	Systems   []System            `yaml:"systems"`
	Countries map[string][]string `yaml:"countries"`
}

// Load reads a catalog definition from a YAML file. The result goes through
// the same validation as the built-in defaults.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var schema fileSchema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return New(schema.Systems, schema.Countries)
}
