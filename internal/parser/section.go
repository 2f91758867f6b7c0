package parser

// headingStack tracks the live ancestor headings during a single linear scan
// over a flat heading token stream. Deeper headings append to the stack;
// same-or-shallower headings replace existing entries.
type headingStack struct {
	entries []stackEntry
}

type stackEntry struct {
	level int
	title string
}

// push closes every entry at the new heading's level or deeper, then adds
// the heading.
func (s *headingStack) push(level int, title string) {
	for len(s.entries) > 0 && s.entries[len(s.entries)-1].level >= level {
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, stackEntry{level: level, title: title})
}

// path returns the live stack's titles, outermost first.
func (s *headingStack) path() []string {
	titles := make([]string, len(s.entries))
	for i, e := range s.entries {
		titles[i] = e.title
	}
	return titles
}
