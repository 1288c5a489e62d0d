package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

var definitionExts = []string{".yaml", ".yml", ".json"}

// LoadDefinition reads and validates a single game definition file.
func LoadDefinition(path string) (*Definition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read game definition %s: %w", path, err)
	}

	var def Definition
	if err := v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("parse game definition %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game definition %s: %w", path, err)
	}
	return &def, nil
}

// LoadDefinitionsDir loads every definition file in a directory, keyed by
// game ID. Files with unknown extensions are skipped.
func LoadDefinitionsDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read games dir %s: %w", dir, err)
	}

	defs := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !lo.Contains(definitionExts, ext) {
			continue
		}

		def, err := LoadDefinition(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := defs[def.GameID]; exists {
			return nil, fmt.Errorf("duplicate game id %s in %s", def.GameID, entry.Name())
		}
		defs[def.GameID] = def
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("no game definitions found in %s", dir)
	}
	return defs, nil
}
