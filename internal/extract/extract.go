// Package extract recovers dependency edges from the free text of change
// proposals. The scan is a best-effort lexical heuristic, not a parser:
// it finds cue phrases ("requires", "depends on", "followed by", ...)
// and emits an edge for each known change slug appearing after the cue on
// the same line. Output is suggestions only; plan validation runs on the
// result regardless, and an explicit depends_on list in frontmatter
// bypasses extraction entirely.
package extract

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/scottwilkos/openspec-flow/internal/change"
)

// Edge is a directed dependency: From must complete before To starts.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// cuePattern matches the lexical cues that introduce a prerequisite
// reference. "followed by" inverts the edge direction: the current change
// precedes the referenced one.
var cuePattern = regexp.MustCompile(`(?i)\b(requires|depends\s+on|blocked\s+by|after|followed\s+by)\b`)

// tokenPattern matches identifier-shaped tokens in lowercased text.
var tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9_-]*`)

// Dependencies scans the body of c for prerequisite references to other
// changes. Only slugs present in known produce edges; self-references and
// duplicates are dropped. The scan never fails: prose with no recognizable
// references yields an empty result.
func Dependencies(c *change.Change, known map[string]bool) []Edge {
	var edges []Edge
	seen := make(map[Edge]bool)

	emit := func(e Edge) {
		if e.From == e.To || seen[e] {
			return
		}
		seen[e] = true
		edges = append(edges, e)
	}

	scanner := bufio.NewScanner(strings.NewReader(c.Body))
	for scanner.Scan() {
		line := scanner.Text()
		cues := cuePattern.FindAllStringSubmatchIndex(line, -1)
		for i, cue := range cues {
			// The reference window runs from this cue to the next cue
			// on the line, or to end of line.
			start := cue[1]
			end := len(line)
			if i+1 < len(cues) {
				end = cues[i+1][0]
			}

			reversed := isFollowedBy(line[cue[2]:cue[3]])
			for _, slug := range knownSlugs(line[start:end], known) {
				if reversed {
					emit(Edge{From: c.ID, To: slug})
				} else {
					emit(Edge{From: slug, To: c.ID})
				}
			}
		}
	}

	return edges
}

// isFollowedBy reports whether the matched cue is the direction-inverting
// "followed by" form.
func isFollowedBy(cue string) bool {
	return strings.HasPrefix(strings.ToLower(cue), "followed")
}

// knownSlugs returns, in order of appearance, every known change slug
// found in the window. Tokens are lowercased before lookup so prose
// capitalization does not hide a reference.
func knownSlugs(window string, known map[string]bool) []string {
	var slugs []string
	for _, token := range tokenPattern.FindAllString(strings.ToLower(window), -1) {
		token = strings.TrimRight(token, "-_")
		if known[token] {
			slugs = append(slugs, token)
		}
	}
	return slugs
}
