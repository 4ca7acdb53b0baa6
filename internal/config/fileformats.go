package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// decodedFile is one file's module -> key -> raw value contents, plus
// whether values are already natively typed (YAML/JSON/TOML) or must be
// run through ParseConfig as strings (INI has no native types).
type decodedFile struct {
	sections map[string]map[string]any
	native   bool
}

// decodeConfigFile reads path and decodes it according to its extension:
// .json -> JSON, .yaml/.yml -> YAML, .toml -> TOML, .ini or no extension
// -> INI (§4.4).
func decodeConfigFile(path string) (decodedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return decodedFile{}, err
	}

	switch filepath.Ext(path) {
	case ".json":
		sections := map[string]map[string]any{}
		if err := json.Unmarshal(raw, &sections); err != nil {
			return decodedFile{}, fmt.Errorf("decode json %s: %w", path, err)
		}
		return decodedFile{sections: sections, native: true}, nil

	case ".yaml", ".yml":
		sections := map[string]map[string]any{}
		if err := yaml.Unmarshal(raw, &sections); err != nil {
			return decodedFile{}, fmt.Errorf("decode yaml %s: %w", path, err)
		}
		return decodedFile{sections: normalizeYAML(sections), native: true}, nil

	case ".toml":
		sections := map[string]map[string]any{}
		if err := toml.Unmarshal(raw, &sections); err != nil {
			return decodedFile{}, fmt.Errorf("decode toml %s: %w", path, err)
		}
		return decodedFile{sections: sections, native: true}, nil

	default: // ".ini" or no extension
		return decodeINI(path)
	}
}

// normalizeYAML returns sections unchanged: yaml.v3 already decodes nested
// mappings as map[string]any (the same type as map[string]interface{}),
// and top-level keys are map[string]any thanks to the concrete type given
// to Unmarshal, so there is nothing to convert.
func normalizeYAML(sections map[string]map[string]any) map[string]map[string]any {
	return sections
}

// decodeINI reads path as an INI file: section headers map to modules,
// keys within a section map to config keys. Values are always strings —
// callers run them through ParseConfig.
func decodeINI(path string) (decodedFile, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return decodedFile{}, fmt.Errorf("decode ini %s: %w", path, err)
	}

	sections := map[string]map[string]any{}
	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == ini.DefaultSection && len(section.Keys()) == 0 {
			continue
		}
		values := make(map[string]any, len(section.Keys()))
		for _, key := range section.Keys() {
			values[key.Name()] = key.String()
		}
		sections[name] = values
	}
	return decodedFile{sections: sections, native: false}, nil
}
