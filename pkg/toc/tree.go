package toc

// Entry is a heading with its assigned anchor id and display title.
type Entry struct {
	ID    string
	Title string
	Level int
	Line  int
}

// Node is one heading in a table of contents forest.
type Node struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Level    int     `json:"level"`
	Children []*Node `json:"children,omitempty"`
}

// Build extracts the headings of src and returns its table of contents.
// A document without level 2-6 headings yields an empty forest.
func Build(src string) []*Node {
	return BuildTree(Assign(ExtractHeadings(src)))
}

// Assign cleans each heading title and gives it an id from a fresh Slugger.
func Assign(headings []Heading) []Entry {
	slugger := NewSlugger()
	entries := make([]Entry, 0, len(headings))
	for _, h := range headings {
		title := CleanTitle(h.Title)
		entries = append(entries, Entry{
			ID:    slugger.Slug(title),
			Title: title,
			Level: h.Level,
			Line:  h.Line,
		})
	}
	return entries
}

// BuildTree nests entries under the closest preceding entry of a lower level.
// An entry with no such ancestor becomes a root, so "#### a" followed by "## b"
// produces two roots. Entries with a level outside 1-6 are skipped.
func BuildTree(entries []Entry) []*Node {
	var roots []*Node
	var lastAt [MaxLevel + 1]*Node

	for _, e := range entries {
		if e.Level < 1 || e.Level > MaxLevel {
			continue
		}
		node := &Node{ID: e.ID, Title: e.Title, Level: e.Level}

		var parent *Node
		for l := e.Level - 1; l >= 1; l-- {
			if lastAt[l] != nil {
				parent = lastAt[l]
				break
			}
		}
		if parent != nil {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}

		lastAt[e.Level] = node
		for l := e.Level + 1; l <= MaxLevel; l++ {
			lastAt[l] = nil
		}
	}
	return roots
}

// Flatten returns the forest's entries in document order.
func Flatten(forest []*Node) []Entry {
	var entries []Entry
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			entries = append(entries, Entry{ID: n.ID, Title: n.Title, Level: n.Level})
			walk(n.Children)
		}
	}
	walk(forest)
	return entries
}

// IDs returns every anchor id in the forest in document order.
func IDs(forest []*Node) []string {
	entries := Flatten(forest)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

// Count returns the number of nodes in the forest.
func Count(forest []*Node) int {
	return len(Flatten(forest))
}
