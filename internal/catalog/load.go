package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orinctl/strapd/internal/models"
)

// LoadOverride reads a single template override from disk and installs it
// into the catalog after validation.
func (c *Catalog) LoadOverride(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("override path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template %s: %w", path, err)
	}

	tmpl, err := parseTemplate(data)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", path, err)
	}

	if err := c.replace(tmpl); err != nil {
		return fmt.Errorf("template %s: %w", path, err)
	}
	return nil
}

// LoadOverridesFromDir installs every *.yaml template found in dir. A missing
// directory is not an error.
func (c *Catalog) LoadOverridesFromDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read templates dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.LoadOverride(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func parseTemplate(data []byte) (*models.Template, error) {
	var tmpl models.Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, err
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}
