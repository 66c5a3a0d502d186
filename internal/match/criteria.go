package match

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CriteriaFile is the on-disk search criteria document:
//
//	search:
//	  price_max: 50000
//	  districts: [信義區, 大安區]
//	  keywords_exclude: [頂樓加蓋]
type CriteriaFile struct {
	Search Filters `yaml:"search"`
}

// LoadCriteria reads and validates a YAML search criteria file.
func LoadCriteria(path string) (Filters, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Filters{}, fmt.Errorf("read search criteria: %w", err)
	}
	return ParseCriteria(raw)
}

// ParseCriteria decodes search criteria YAML.
func ParseCriteria(raw []byte) (Filters, error) {
	var file CriteriaFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Filters{}, fmt.Errorf("parse search criteria: %w", err)
	}
	if err := file.Search.Validate(); err != nil {
		return Filters{}, fmt.Errorf("invalid search criteria: %w", err)
	}
	return file.Search, nil
}
