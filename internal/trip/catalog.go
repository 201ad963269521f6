package trip

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vehicles.yaml
var defaultCatalogYAML []byte

// VehicleModel is one catalog entry.
type VehicleModel struct {
	Name    string  `yaml:"name" json:"name"`
	RangeKm float64 `yaml:"rangeKm" json:"rangeKm"`
}

// Brand groups the models of one manufacturer.
type Brand struct {
	Name   string         `yaml:"name" json:"name"`
	Models []VehicleModel `yaml:"models" json:"models"`
}

// Catalog lists the selectable vehicles.
type Catalog struct {
	Brands []Brand `yaml:"brands" json:"brands"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded vehicle catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file. An empty path returns the built-in one.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vehicle catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and checks a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse vehicle catalog: %w", err)
	}
	if len(c.Brands) == 0 {
		return nil, fmt.Errorf("parse vehicle catalog: no brands")
	}
	for _, b := range c.Brands {
		if strings.TrimSpace(b.Name) == "" {
			return nil, fmt.Errorf("parse vehicle catalog: brand without name")
		}
		for _, m := range b.Models {
			if strings.TrimSpace(m.Name) == "" || m.RangeKm < 0 {
				return nil, fmt.Errorf("parse vehicle catalog: invalid model under %s", b.Name)
			}
		}
	}
	return &c, nil
}

// Lookup finds a model by brand and model name, ignoring case.
func (c *Catalog) Lookup(brand, model string) (VehicleModel, bool) {
	for _, b := range c.Brands {
		if !strings.EqualFold(b.Name, brand) {
			continue
		}
		for _, m := range b.Models {
			if strings.EqualFold(m.Name, model) {
				return m, true
			}
		}
	}
	return VehicleModel{}, false
}

// Resolve validates v against the catalog and fills a missing range from
// the catalog entry. Brand and model come back in catalog spelling.
func (c *Catalog) Resolve(v VehicleProfile) (VehicleProfile, error) {
	if v.RangeKm < 0 {
		return VehicleProfile{}, fmt.Errorf("%w: range must be positive", ErrInvalidVehicle)
	}
	for _, b := range c.Brands {
		if !strings.EqualFold(b.Name, v.Brand) {
			continue
		}
		for _, m := range b.Models {
			if !strings.EqualFold(m.Name, v.Model) {
				continue
			}
			out := VehicleProfile{Brand: b.Name, Model: m.Name, RangeKm: v.RangeKm}
			if out.RangeKm == 0 {
				out.RangeKm = m.RangeKm
			}
			if out.RangeKm <= 0 {
				return VehicleProfile{}, fmt.Errorf("%w: range must be positive", ErrInvalidVehicle)
			}
			return out, nil
		}
		return VehicleProfile{}, fmt.Errorf("%w: unknown model %q for %s", ErrInvalidVehicle, v.Model, b.Name)
	}
	return VehicleProfile{}, fmt.Errorf("%w: unknown brand %q", ErrInvalidVehicle, v.Brand)
}
