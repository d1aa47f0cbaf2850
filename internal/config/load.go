package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LoadResult is the outcome of one directory scan: the watches that parsed
// and validated cleanly, keyed by watch id, plus one error per rejected
// document. A rejected document does not stop the scan of the rest.
type LoadResult struct {
	Watches map[string]*WatchConfig
	Errors  []error
}

// LoadDir reads every *.json file directly under dir and returns the valid
// watch documents plus the errors for the rejected ones. Unknown JSON
// fields are ignored, so operators can add forward-looking keys to a watch
// document without breaking older binaries.
func LoadDir(dir string) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	result := &LoadResult{Watches: make(map[string]*WatchConfig, len(names))}

	for _, name := range names {
		path := filepath.Join(dir, name)
		w, err := loadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Watches[w.ID] = w
	}

	return result, nil
}

func loadFile(path string) (*WatchConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Cause: err}
	}

	var w WatchConfig
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &ParseError{File: path, Cause: err}
	}

	if err := w.Validate(path); err != nil {
		return nil, err
	}
	if err := w.finalize(path); err != nil {
		return nil, err
	}

	return &w, nil
}
