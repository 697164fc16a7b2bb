// ABOUTME: Splits long markdown replies into display pages at block boundaries
// ABOUTME: Uses the goldmark AST so pages never break inside a paragraph or code fence

package pager

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultPageSize is the page length the CLI uses when the gateway sent a
// single oversized page.
const DefaultPageSize = 2000

// Split breaks markdown source into pages of at most maxLen bytes,
// cutting only between top-level blocks. A single block longer than
// maxLen stays whole rather than being split mid-paragraph. The source
// comes back unchanged when it already fits.
func Split(src string, maxLen int) []string {
	if maxLen <= 0 || len(src) <= maxLen {
		return []string{src}
	}

	cuts := blockStarts(src)
	if len(cuts) < 2 {
		return []string{src}
	}

	var pages []string
	pageStart := cuts[0]
	for i := 1; i < len(cuts); i++ {
		// Cut before this block if the page would otherwise overflow.
		if cuts[i]-pageStart > maxLen && cuts[i-1] > pageStart {
			pages = append(pages, strings.TrimRight(src[pageStart:cuts[i-1]], "\n"))
			pageStart = cuts[i-1]
		}
	}
	if len(src)-pageStart > maxLen && cuts[len(cuts)-1] > pageStart {
		pages = append(pages, strings.TrimRight(src[pageStart:cuts[len(cuts)-1]], "\n"))
		pageStart = cuts[len(cuts)-1]
	}
	pages = append(pages, strings.TrimRight(src[pageStart:], "\n"))
	return pages
}

// blockStarts returns the source offsets of the top-level markdown
// blocks, each rewound to the beginning of its line so list markers and
// heading hashes stay with their block.
func blockStarts(src string) []int {
	doc := goldmark.New().Parser().Parse(text.NewReader([]byte(src)))

	var starts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if off, ok := nodeStart(n); ok {
			starts = append(starts, lineStart(src, off))
		}
	}
	return starts
}

// nodeStart finds the first source offset covered by a block node,
// descending into containers (lists, quotes) that carry no lines of
// their own. Thematic breaks have neither lines nor children.
func nodeStart(n ast.Node) (int, bool) {
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		return lines.At(0).Start, true
	}
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if off, ok := nodeStart(child); ok {
			return off, true
		}
	}
	return 0, false
}

// lineStart rewinds an offset to the start of its line.
func lineStart(src string, off int) int {
	if off > len(src) {
		off = len(src)
	}
	if i := strings.LastIndexByte(src[:off], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}
