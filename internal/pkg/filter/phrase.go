package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Phrase is a pattern with the reason it is matched for.
type Phrase struct {
	Text   string
	Reason string
}

// Match is an occurrence of a phrase in normalized text.
type Match struct {
	Phrase   Phrase
	Position int // rune offset in the normalized text
}

type node struct {
	children map[rune]*node
	fail     *node
	output   []Phrase
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Matcher finds any of a fixed set of phrases in one pass (Aho-Corasick).
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	root *node
}

// NewMatcher builds a matcher for phrases. Empty phrases are ignored.
func NewMatcher(phrases []Phrase) *Matcher {
	m := &Matcher{root: newNode()}
	for _, p := range phrases {
		m.add(p)
	}
	m.link()
	return m
}

func (m *Matcher) add(p Phrase) {
	text := Normalize(p.Text)
	if text == "" {
		return
	}
	n := m.root
	for _, r := range text {
		child, ok := n.children[r]
		if !ok {
			child = newNode()
			n.children[r] = child
		}
		n = child
	}
	n.output = append(n.output, p)
}

// link builds the failure links breadth first.
func (m *Matcher) link() {
	queue := make([]*node, 0, len(m.root.children))
	for _, child := range m.root.children {
		child.fail = m.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for r, child := range current.children {
			queue = append(queue, child)

			fail := current.fail
			for fail != nil && fail.children[r] == nil {
				fail = fail.fail
			}
			if fail == nil {
				child.fail = m.root
				continue
			}
			child.fail = fail.children[r]
			child.output = append(child.output, child.fail.output...)
		}
	}
}

func (m *Matcher) step(n *node, r rune) *node {
	for n != nil && n.children[r] == nil {
		n = n.fail
	}
	if n == nil {
		return m.root
	}
	return n.children[r]
}

// FindAll returns every phrase occurrence in text.
func (m *Matcher) FindAll(text string) []Match {
	matches := make([]Match, 0)
	n := m.root
	position := 0
	for _, r := range Normalize(text) {
		n = m.step(n, r)
		for _, p := range n.output {
			matches = append(matches, Match{
				Phrase:   p,
				Position: position - len([]rune(Normalize(p.Text))) + 1,
			})
		}
		position++
	}
	return matches
}

// Find returns the first phrase that ends earliest in text.
func (m *Matcher) Find(text string) (Phrase, bool) {
	n := m.root
	for _, r := range Normalize(text) {
		n = m.step(n, r)
		if len(n.output) > 0 {
			return n.output[0], true
		}
	}
	return Phrase{}, false
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Normalize lower-cases text, strips diacritics, unifies apostrophes and
// collapses runs of whitespace to a single space.
func Normalize(text string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	result, _, err := transform.String(t, text)
	if err != nil {
		result = text
	}
	result = apostrophes.Replace(result)

	var b strings.Builder
	b.Grow(len(result))
	space := false
	for _, r := range result {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
