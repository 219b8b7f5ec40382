package scan

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Project is lightweight metadata about the scanned tree, used to name
// SARIF runs and log context.
type Project struct {
	Name    string
	Kind    string
	HasGit  bool
	Markers []string
}

// DetectProject probes well-known marker files under root. Detection is
// best effort: an unrecognized tree still scans, it just stays unnamed.
func DetectProject(root string) Project {
	project := Project{Name: filepath.Base(root), Kind: "unknown"}

	markers := []struct {
		file string
		kind string
	}{
		{"package.json", "javascript"},
		{"pyproject.toml", "python"},
		{"setup.py", "python"},
		{"requirements.txt", "python"},
	}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(root, marker.file)); err != nil {
			continue
		}
		project.Markers = append(project.Markers, marker.file)
		if project.Kind == "unknown" {
			project.Kind = marker.kind
		}
	}
	if info, err := os.Stat(filepath.Join(root, ".git")); err == nil && info.IsDir() {
		project.HasGit = true
	}

	if name := packageName(filepath.Join(root, "package.json")); name != "" {
		project.Name = name
	}
	return project
}

func packageName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	return manifest.Name
}
