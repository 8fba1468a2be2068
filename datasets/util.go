package datasets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// decodeFile reads path and unmarshals it into v. The format is chosen by
// file extension (.json, .yaml, .yml).
func decodeFile(path string, v any) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported format: %s (supported: .json, .yaml, .yml)", ext)
	}
	return nil
}

const connectivitySuffix = "_connectivity.json"

// FindConnectivityScans lists the scans that have a connectivity file in dir.
func FindConnectivityScans(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+connectivitySuffix))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no connectivity files found in %s", dir)
	}

	scans := make([]string, 0, len(matches))
	for _, m := range matches {
		scans = append(scans, strings.TrimSuffix(filepath.Base(m), connectivitySuffix))
	}
	sort.Strings(scans)
	return scans, nil
}

// longID joins a scan and a second key the way the precomputed tables do.
func longID(scan, key string) string {
	return scan + "_" + key
}
