package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AssetSpec is an asset registered at startup. Price, when set, seeds the static price feed.
type AssetSpec struct {
	ID        string `yaml:"id"`
	Symbol    string `yaml:"symbol"`
	PriceFeed string `yaml:"price_feed"`
	Price     string `yaml:"price,omitempty"`
}

type assetsFile struct {
	Assets []AssetSpec `yaml:"assets"`
}

// LoadAssets reads the YAML asset list at path.
func LoadAssets(path string) ([]AssetSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets file %s: %w", path, err)
	}
	return ParseAssets(raw)
}

// ParseAssets decodes and validates an asset list.
func ParseAssets(raw []byte) ([]AssetSpec, error) {
	var f assetsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse assets file: %w", err)
	}

	seen := make(map[string]bool, len(f.Assets))
	for i, a := range f.Assets {
		if a.ID == "" {
			return nil, fmt.Errorf("asset %d: id is required", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("asset %s is listed twice", a.ID)
		}
		seen[a.ID] = true
		if a.PriceFeed == "" && a.Price == "" {
			return nil, errors.New("asset " + a.ID + " needs a price_feed or a static price")
		}
	}
	return f.Assets, nil
}
