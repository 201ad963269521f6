package trip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	names := make([]string, len(c.Brands))
	for i, b := range c.Brands {
		names[i] = b.Name
	}
	assert.Equal(t, []string{"Tesla", "Nissan", "BMW", "Hyundai", "Ford"}, names)

	m, ok := c.Lookup("tesla", "model 3")
	require.True(t, ok)
	assert.Equal(t, "Model 3", m.Name)
	assert.Positive(t, m.RangeKm)

	_, ok = c.Lookup("Tesla", "Leaf")
	assert.False(t, ok)
}

func TestCatalog_Resolve(t *testing.T) {
	c := DefaultCatalog()

	v, err := c.Resolve(VehicleProfile{Brand: "nissan", Model: "LEAF", RangeKm: 150})
	require.NoError(t, err)
	assert.Equal(t, VehicleProfile{Brand: "Nissan", Model: "Leaf", RangeKm: 150}, v)

	v, err = c.Resolve(VehicleProfile{Brand: "BMW", Model: "i4"})
	require.NoError(t, err)
	assert.Equal(t, 520.0, v.RangeKm)

	_, err = c.Resolve(VehicleProfile{Brand: "Rivian", Model: "R1T", RangeKm: 300})
	assert.ErrorIs(t, err, ErrInvalidVehicle)

	_, err = c.Resolve(VehicleProfile{Brand: "Ford", Model: "Focus", RangeKm: 300})
	assert.ErrorIs(t, err, ErrInvalidVehicle)

	_, err = c.Resolve(VehicleProfile{Brand: "Ford", Model: "Mustang Mach-E", RangeKm: -1})
	assert.ErrorIs(t, err, ErrInvalidVehicle)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vehicles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
brands:
  - name: Kia
    models:
      - {name: EV6, rangeKm: 500}
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Brands, 1)
	assert.Equal(t, "EV6", c.Brands[0].Models[0].Name)

	c, err = LoadCatalog("")
	require.NoError(t, err)
	assert.Len(t, c.Brands, 5)

	_, err = LoadCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseCatalog_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"not yaml":      "brands: [",
		"empty":         "brands: []",
		"unnamed":       "brands:\n  - models: []\n",
		"model unnamed": "brands:\n  - name: X\n    models:\n      - {rangeKm: 10}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(data))
			assert.Error(t, err)
		})
	}
}
