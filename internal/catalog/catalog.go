// Package catalog holds the static strap line table and sequence templates.
package catalog

import (
	"errors"
	"fmt"

	"github.com/orinctl/strapd/internal/models"
)

// Catalog errors.
var (
	ErrUnknownSequence = errors.New("unknown sequence kind")
	ErrUnknownLine     = errors.New("unknown strap line")
)

// Catalog resolves sequence kinds to templates and line IDs to metadata.
// It is immutable after construction.
type Catalog struct {
	lines     map[models.LineID]models.Line
	templates map[models.SequenceKind]*models.Template
}

// New returns a catalog seeded with the built-in line table and templates.
func New() *Catalog {
	c := &Catalog{
		lines:     make(map[models.LineID]models.Line, len(builtinLines)),
		templates: make(map[models.SequenceKind]*models.Template, 4),
	}
	for _, line := range builtinLines {
		c.lines[line.ID] = line
	}
	for _, tmpl := range builtinTemplates() {
		c.templates[tmpl.Kind] = tmpl
	}
	return c
}

// TemplateFor returns the template registered for the given kind.
func (c *Catalog) TemplateFor(kind models.SequenceKind) (*models.Template, error) {
	tmpl, ok := c.templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSequence, kind)
	}
	return tmpl, nil
}

// LineByID returns the metadata for a strap line.
func (c *Catalog) LineByID(id models.LineID) (models.Line, error) {
	line, ok := c.lines[id]
	if !ok {
		return models.Line{}, fmt.Errorf("%w: %s", ErrUnknownLine, id)
	}
	return line, nil
}

// Lines returns the full line table in deterministic order.
func (c *Catalog) Lines() []models.Line {
	out := make([]models.Line, 0, len(c.lines))
	for _, id := range models.AllLines() {
		if line, ok := c.lines[id]; ok {
			out = append(out, line)
		}
	}
	return out
}

// Templates returns every registered template in deterministic order.
func (c *Catalog) Templates() []*models.Template {
	out := make([]*models.Template, 0, len(c.templates))
	for _, kind := range models.AllSequenceKinds() {
		if tmpl, ok := c.templates[kind]; ok {
			out = append(out, tmpl)
		}
	}
	return out
}

// replace swaps in a validated template override.
func (c *Catalog) replace(tmpl *models.Template) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	for _, step := range tmpl.Steps {
		if _, ok := c.lines[step.Line]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownLine, step.Line)
		}
	}
	c.templates[tmpl.Kind] = tmpl
	return nil
}
