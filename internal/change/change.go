// Package change defines the change-proposal model and the store boundary
// used to load proposals from an OpenSpec-style directory layout.
//
// A change is a markdown proposal document identified by a human-chosen
// slug (its directory name). Proposals may carry an optional leading YAML
// frontmatter block:
//
//	---
//	title: Add rate limits to the public API
//	status: draft
//	depends_on:
//	  - add-api-gateway
//	---
//
// The frontmatter is entirely optional. When the depends_on key is present
// its value is authoritative, even when empty; when absent, prerequisites
// are recovered heuristically from the proposal text downstream.
package change

import (
	"fmt"
	"regexp"
)

// slugPattern matches the identifier shape used for change IDs: lowercase
// alphanumeric segments joined by single hyphens or underscores.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// Change is a single spec-change proposal loaded from disk.
type Change struct {
	// ID is the change slug, taken from the proposal's directory name.
	ID string `json:"id" yaml:"id"`

	// Title is the human-readable title from frontmatter, or the first
	// markdown heading when no frontmatter title is present.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Status is the proposal lifecycle status from frontmatter
	// (draft, review, approved). Empty when unspecified.
	Status string `json:"status,omitempty" yaml:"status,omitempty"`

	// Body is the markdown text after the frontmatter block.
	Body string `json:"-" yaml:"-"`

	// DependsOn holds the explicit prerequisite slugs from frontmatter.
	// nil means the key was absent and prerequisites must be extracted
	// from Body; a non-nil empty slice means "explicitly no prerequisites".
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Tasks summarizes the checkbox task list attached to the change.
	Tasks TaskStats `json:"tasks" yaml:"tasks"`

	// Path is the absolute path of the proposal file the change was read from.
	Path string `json:"-" yaml:"-"`
}

// TaskStats counts the markdown checkbox items of a change.
type TaskStats struct {
	Total int `json:"total" yaml:"total"`
	Done  int `json:"done" yaml:"done"`
}

// Remaining returns the number of unchecked tasks.
func (s TaskStats) Remaining() int {
	return s.Total - s.Done
}

// HasExplicitDeps reports whether the proposal declared its prerequisites
// in frontmatter. An empty-but-present depends_on list counts as explicit.
func (c *Change) HasExplicitDeps() bool {
	return c.DependsOn != nil
}

// Validate checks structural validity of the change.
func (c *Change) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("change ID cannot be empty")
	}
	if !slugPattern.MatchString(c.ID) {
		return fmt.Errorf("change ID %q is not a valid slug", c.ID)
	}
	for _, dep := range c.DependsOn {
		if dep == c.ID {
			return fmt.Errorf("change %s cannot depend on itself", c.ID)
		}
	}
	return nil
}
