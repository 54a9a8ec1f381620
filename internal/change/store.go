package change

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ArchiveDir is the directory under the changes root holding completed
// proposals. Archived changes are invisible to List.
const ArchiveDir = "archive"

// proposalFile is the file each change directory must contain.
const proposalFile = "proposal.md"

// tasksFile optionally accompanies a proposal with its checkbox task list.
const tasksFile = "tasks.md"

// Store is the read-only boundary for loading change proposals.
type Store interface {
	// List returns all active (non-archived) changes, sorted by ID.
	List(ctx context.Context) ([]*Change, error)

	// Get returns a single change by slug.
	Get(ctx context.Context, id string) (*Change, error)
}

// NotFoundError indicates that no change with the requested slug exists.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("change %q not found", e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// FSStore loads changes from an OpenSpec-style directory tree:
//
//	<root>/changes/<slug>/proposal.md
//	<root>/changes/<slug>/tasks.md      (optional)
//	<root>/changes/archive/...          (skipped)
type FSStore struct {
	root   string
	logger *slog.Logger
}

// FSStoreOption configures an FSStore.
type FSStoreOption func(*FSStore)

// WithLogger sets the logger used for skip diagnostics.
func WithLogger(logger *slog.Logger) FSStoreOption {
	return func(s *FSStore) {
		s.logger = logger
	}
}

// NewFSStore creates a store rooted at the given project directory.
func NewFSStore(root string, opts ...FSStoreOption) *FSStore {
	s := &FSStore{
		root:   root,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// changesDir returns the directory holding the change subdirectories.
func (s *FSStore) changesDir() string {
	return filepath.Join(s.root, "changes")
}

// List implements Store. Directories without a proposal file are skipped
// with a debug log rather than treated as errors.
func (s *FSStore) List(ctx context.Context) ([]*Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.changesDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read changes directory %s: %w", dir, err)
	}

	changes := make([]*Change, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == ArchiveDir {
			continue
		}

		c, err := s.load(entry.Name())
		if err != nil {
			if os.IsNotExist(err) {
				s.logger.Debug("skipping directory without proposal",
					"dir", entry.Name())
				continue
			}
			return nil, fmt.Errorf("failed to load change %s: %w", entry.Name(), err)
		}
		changes = append(changes, c)
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].ID < changes[j].ID
	})

	return changes, nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, id string) (*Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == ArchiveDir {
		return nil, &NotFoundError{ID: id}
	}

	c, err := s.load(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to load change %s: %w", id, err)
	}
	return c, nil
}

// load reads and parses a single change directory.
func (s *FSStore) load(id string) (*Change, error) {
	path := filepath.Join(s.changesDir(), id, proposalFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c, err := parseProposal(id, data)
	if err != nil {
		return nil, err
	}
	c.Path = path

	// Task stats come from tasks.md when present, otherwise from any
	// checkbox lines embedded in the proposal body.
	tasksData, err := os.ReadFile(filepath.Join(s.changesDir(), id, tasksFile))
	switch {
	case err == nil:
		c.Tasks = countTasks(string(tasksData))
	case os.IsNotExist(err):
		c.Tasks = countTasks(c.Body)
	default:
		return nil, err
	}

	return c, nil
}

// frontmatter is the optional YAML header of a proposal. DependsOn is a
// pointer so an explicitly empty list is distinguishable from an absent key.
type frontmatter struct {
	Title     string    `yaml:"title"`
	Status    string    `yaml:"status"`
	DependsOn *[]string `yaml:"depends_on"`
}

// frontmatterDelimiter separates the YAML header from the markdown body.
const frontmatterDelimiter = "---"

// parseProposal splits a proposal document into frontmatter and body and
// assembles the Change. Malformed frontmatter is an error; absent
// frontmatter is not.
func parseProposal(id string, data []byte) (*Change, error) {
	c := &Change{ID: id}

	body := data
	if fm, rest, ok := splitFrontmatter(data); ok {
		var meta frontmatter
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			return nil, fmt.Errorf("invalid frontmatter: %w", err)
		}
		c.Title = meta.Title
		c.Status = meta.Status
		if meta.DependsOn != nil {
			deps := *meta.DependsOn
			if deps == nil {
				deps = []string{}
			}
			c.DependsOn = deps
		}
		body = rest
	}

	c.Body = string(body)
	if c.Title == "" {
		c.Title = firstHeading(c.Body)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// splitFrontmatter returns the frontmatter bytes and the remaining body
// when data opens with a delimited YAML block. ok is false when the
// document has no frontmatter; unterminated frontmatter is treated as a
// plain body rather than an error.
func splitFrontmatter(data []byte) (fm, body []byte, ok bool) {
	s := strings.TrimPrefix(string(data), "\uFEFF")

	first, rest, more := strings.Cut(s, "\n")
	if !more || strings.TrimRight(first, "\r") != frontmatterDelimiter {
		return nil, data, false
	}

	offset := 0
	remaining := rest
	for {
		line, next, more := strings.Cut(remaining, "\n")
		if strings.TrimRight(line, "\r") == frontmatterDelimiter {
			return []byte(rest[:offset]), []byte(next), true
		}
		if !more {
			return nil, data, false
		}
		offset += len(line) + 1
		remaining = next
	}
}

// firstHeading returns the text of the first markdown heading, or "".
func firstHeading(body string) string {
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

// countTasks tallies markdown checkbox lines ("- [ ]" and "- [x]").
func countTasks(text string) TaskStats {
	var stats TaskStats
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "- [ ]"), strings.HasPrefix(line, "* [ ]"):
			stats.Total++
		case strings.HasPrefix(line, "- [x]"), strings.HasPrefix(line, "- [X]"),
			strings.HasPrefix(line, "* [x]"), strings.HasPrefix(line, "* [X]"):
			stats.Total++
			stats.Done++
		}
	}
	return stats
}
