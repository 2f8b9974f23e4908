package catalog

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DebugInfo describes what the catalog sees on disk. It bypasses the cache.
func (c *Catalog) DebugInfo() map[string]any {
	info := map[string]any{
		"providers_dir":        c.root,
		"providers_dir_exists": false,
		"providers_dir_is_dir": false,
	}
	providers := []map[string]any{}
	errs := []string{}

	st, err := os.Stat(c.root)
	if err != nil {
		errs = append(errs, "Providers directory does not exist: "+c.root)
		info["providers"] = providers
		info["errors"] = errs
		return info
	}
	info["providers_dir_exists"] = true
	info["providers_dir_is_dir"] = st.IsDir()

	entries, err := os.ReadDir(c.root)
	if err != nil {
		errs = append(errs, "Error listing providers_dir: "+err.Error())
		info["providers"] = providers
		info["errors"] = errs
		return info
	}
	contents := make([]string, 0, len(entries))
	for _, e := range entries {
		contents = append(contents, filepath.Join(c.root, e.Name()))
	}
	info["providers_dir_contents"] = contents

	for _, e := range entries {
		if !e.IsDir() || skipName(e.Name()) {
			continue
		}
		providers = append(providers, c.providerDebug(e.Name()))
	}
	info["providers"] = providers
	info["errors"] = errs
	return info
}

func (c *Catalog) providerDebug(name string) map[string]any {
	dir := filepath.Join(c.root, name)
	services := filepath.Join(dir, servicesDir)
	p := map[string]any{
		"name":                name,
		"path":                dir,
		"services_dir":        services,
		"services_dir_exists": false,
		"check_count":         0,
		"sample_files":        []string{},
	}
	if _, err := os.Stat(services); err != nil {
		return p
	}
	p["services_dir_exists"] = true

	if entries, err := os.ReadDir(services); err != nil {
		p["error"] = "Error listing services: " + err.Error()
	} else {
		var folders []string
		for _, e := range entries {
			if e.IsDir() {
				folders = append(folders, e.Name())
			}
		}
		p["total_service_folders"] = len(folders)
		if len(folders) > 10 {
			folders = folders[:10]
		}
		p["service_folders"] = folders
	}

	var files []string
	_ = filepath.WalkDir(services, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(d.Name(), metadataSuffix) {
			files = append(files, path)
		}
		return nil
	})
	p["check_count"] = len(files)
	if len(files) == 0 {
		return p
	}
	samples := files
	if len(samples) > 5 {
		samples = samples[:5]
	}
	p["sample_files"] = samples

	raw, err := os.ReadFile(files[0])
	if err != nil {
		p["sample_read_error"] = err.Error()
		return p
	}
	var ch Check
	if err := json.Unmarshal(raw, &ch); err != nil {
		p["sample_read_error"] = err.Error()
		return p
	}
	p["sample_check"] = map[string]any{
		"file":       files[0],
		"CheckID":    ch.CheckID,
		"CheckTitle": ch.CheckTitle,
	}
	return p
}
