package fieldref

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads a field reference from path. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON. The reference ID is the base
// file name, matching how the manifest refers to it.
func LoadFile(path string) (*FieldReference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field reference: %w", err)
	}

	id := filepath.Base(path)
	var ref *FieldReference
	if isYAML(path) {
		ref, err = ParseYAML(data)
	} else {
		ref, err = Parse(data)
	}
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.ID = id
		}
		return nil, err
	}
	ref.ID = id
	return ref, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Set is a collection of field references keyed by ID.
type Set map[string]*FieldReference

// Get returns the reference with the given ID.
func (s Set) Get(id string) (*FieldReference, error) {
	ref, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("field reference %q not loaded", id)
	}
	return ref, nil
}

// Available lists the candidate field reference files in confDir, keyed by ID.
func Available(confDir string) (map[string]string, error) {
	entries, err := os.ReadDir(confDir)
	if err != nil {
		return nil, fmt.Errorf("list field references: %w", err)
	}
	files := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".json" || ext == ".yaml" || ext == ".yml" {
			files[e.Name()] = filepath.Join(confDir, e.Name())
		}
	}
	return files, nil
}

// LoadSet loads every listed reference ID from confDir. Each document is
// loaded once even when many manifest entries share it.
func LoadSet(confDir string, ids []string) (Set, error) {
	set := make(Set, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			continue
		}
		ref, err := LoadFile(filepath.Join(confDir, id))
		if err != nil {
			return nil, err
		}
		set[id] = ref
	}
	return set, nil
}
