package resolver

import (
	"strings"
	"sync"
)

// Ticket identifies one issued query for a field. Results are applied only
// when their ticket is still the latest one issued for the field.
type Ticket struct {
	Field string
	Token uint64
	Text  string
}

// Field holds the query text and resolved candidates of one input field.
type Field struct {
	mu         sync.Mutex
	name       string
	text       string
	token      uint64
	candidates []Candidate
	selected   *Candidate
}

// NewField creates an empty field.
func NewField(name string) *Field {
	return &Field{name: name, candidates: []Candidate{}}
}

// Name returns the field name.
func (f *Field) Name() string {
	return f.name
}

// SetText records new text and issues a ticket for resolving it. Any ticket
// issued earlier becomes stale.
func (f *Field) SetText(text string) Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.text = text
	f.token++
	if f.selected != nil && f.selected.Title != strings.TrimSpace(text) {
		f.selected = nil
	}
	return Ticket{Field: f.name, Token: f.token, Text: text}
}

// Text returns the current field text.
func (f *Field) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

// Current reports whether t is the latest ticket.
func (f *Field) Current(t Ticket) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return t.Token == f.token
}

// Apply stores candidates resolved for t. It returns false and changes nothing
// when t has been superseded.
func (f *Field) Apply(t Ticket, candidates []Candidate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.Token != f.token {
		return false
	}
	f.candidates = append(make([]Candidate, 0, len(candidates)), candidates...)
	return true
}

// Candidates returns a copy of the current candidates.
func (f *Field) Candidates() []Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(make([]Candidate, 0, len(f.candidates)), f.candidates...)
}

// Select picks a candidate by id. The field text becomes the candidate title and
// in-flight resolutions for older text are discarded.
func (f *Field) Select(id string) (Candidate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.candidates {
		if c.ID == id {
			sel := c
			f.selected = &sel
			f.text = c.Title
			f.token++
			return c, true
		}
	}
	return Candidate{}, false
}

// Match returns the candidate that matches the field text exactly: the selected
// candidate first, then a title match, then an id match.
func (f *Field) Match() (Candidate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	text := strings.TrimSpace(f.text)
	if text == "" {
		return Candidate{}, false
	}
	if f.selected != nil && f.selected.Title == text {
		return *f.selected, true
	}
	for _, c := range f.candidates {
		if c.Title == text {
			return c, true
		}
	}
	for _, c := range f.candidates {
		if c.ID == text {
			return c, true
		}
	}
	return Candidate{}, false
}

// Reset clears text, candidates and selection.
func (f *Field) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = ""
	f.token++
	f.candidates = []Candidate{}
	f.selected = nil
}
