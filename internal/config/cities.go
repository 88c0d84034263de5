package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultCities is the built-in city list used when no cities file is
// configured. Filenames in the raw data directory must match these stems.
var defaultCities = []string{"berlin", "hamburg", "munich", "cologne"}

// citiesFile is the YAML shape of an optional cities override:
//
//	cities:
//	  - name: berlin
//	  - name: hamburg
type citiesFile struct {
	Cities []struct {
		Name string `yaml:"name"`
	} `yaml:"cities"`
}

// Cities returns the known-city list, lowercased. When CitiesFile is set it
// is read and must contain at least one city; otherwise the default four
// German cities are returned.
func (c *Config) Cities() ([]string, error) {
	if c.Pipeline.CitiesFile == "" {
		return defaultCities, nil
	}

	data, err := os.ReadFile(c.Pipeline.CitiesFile)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}

	var cf citiesFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse cities file %s: %w", c.Pipeline.CitiesFile, err)
	}
	if len(cf.Cities) == 0 {
		return nil, fmt.Errorf("cities file %s lists no cities", c.Pipeline.CitiesFile)
	}

	cities := make([]string, 0, len(cf.Cities))
	for _, entry := range cf.Cities {
		name := strings.ToLower(strings.TrimSpace(entry.Name))
		if name == "" {
			return nil, fmt.Errorf("cities file %s contains an empty city name", c.Pipeline.CitiesFile)
		}
		cities = append(cities, name)
	}
	return cities, nil
}
