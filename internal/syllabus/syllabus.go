// Package syllabus parses packed syllabus links and builds the topic tree
// used to drive syllabus filters.
//
// A raw link may hold several alternative paths separated by "||"; each path
// is a sequence of levels separated by "»", e.g.
//
//	"Stoichiometry » Moles||Energetics » Enthalpy » Hess's law"
package syllabus

import (
	"sort"
	"strings"
)

const (
	LinkSeparator  = "||"
	LevelSeparator = "»"

	// MaxDepth bounds tree walks against malformed input.
	MaxDepth = 10
)

// ParseLink splits a raw syllabus link into its paths, each a slice of
// trimmed, non-empty level labels. Empty paths are dropped.
func ParseLink(raw string) [][]string {
	var paths [][]string
	for _, link := range strings.Split(raw, LinkSeparator) {
		if path := ParsePath(link); len(path) > 0 {
			paths = append(paths, path)
		}
	}
	return paths
}

// ParsePath splits a single path on the level separator.
func ParsePath(path string) []string {
	var levels []string
	for _, part := range strings.Split(path, LevelSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			levels = append(levels, part)
		}
	}
	return levels
}

// FormatPath joins levels the way filter strings are written.
func FormatPath(levels []string) string {
	return strings.Join(levels, " "+LevelSeparator+" ")
}

// Matches reports whether any of paths starts with the levels of target.
// Matching is per path, so a target can hit the second alternative of a
// packed link as well as the first.
func Matches(paths [][]string, target string) bool {
	want := ParsePath(target)
	if len(want) == 0 {
		return false
	}
	for _, path := range paths {
		if hasPrefix(path, want) {
			return true
		}
	}
	return false
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ── Hierarchy ───────────────────────────────────────────

// Node is one level of the syllabus tree. Children are keyed by label.
type Node struct {
	Children map[string]*Node `json:"children,omitempty"`
}

func newNode() *Node {
	return &Node{Children: make(map[string]*Node)}
}

// Keys returns the child labels in sorted order.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	keys := make([]string, 0, len(n.Children))
	for k := range n.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (n *Node) IsLeaf() bool {
	return n == nil || len(n.Children) == 0
}

// Build inserts every path of every link into a fresh tree. The same label
// at the same depth is merged.
func Build(links []string) *Node {
	root := newNode()
	for _, link := range links {
		for _, path := range ParseLink(link) {
			root.insert(path)
		}
	}
	return root
}

func (n *Node) insert(path []string) {
	cur := n
	for _, label := range path {
		next, ok := cur.Children[label]
		if !ok {
			next = newNode()
			cur.Children[label] = next
		}
		cur = next
	}
}

// Level is one selection widget: the labels offered at a depth and the one
// in effect.
type Level struct {
	Depth    int      `json:"depth"`
	Options  []string `json:"options"`
	Selected string   `json:"selected"`
}

// SelectionPath walks the tree using picks[d] at depth d. A pick that is not
// offered at its depth (or a missing pick) falls back to the first option, so
// the walk always ends at a leaf or at MaxDepth. It returns the resulting
// filter string and the levels that were offered.
func SelectionPath(tree *Node, picks []string) (string, []Level) {
	var (
		levels   []Level
		selected []string
	)
	cur := tree
	for depth := 0; depth < MaxDepth && !cur.IsLeaf(); depth++ {
		options := cur.Keys()
		choice := options[0]
		if depth < len(picks) {
			if pick := strings.TrimSpace(picks[depth]); cur.Children[pick] != nil {
				choice = pick
			}
		}
		levels = append(levels, Level{Depth: depth, Options: options, Selected: choice})
		selected = append(selected, choice)
		cur = cur.Children[choice]
	}
	return FormatPath(selected), levels
}
