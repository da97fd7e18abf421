/**
 * Structured Text Parser
 *
 * Turns the combined recognition document into typed entities:
 * 1. Friend rows: a name line followed within two lines by a mutual-count line
 * 2. Comments: "<Name> • <text>" lines
 * 3. Posts: per block, optional author and timestamp, engagement counts, body
 * 4. Deduplication by normalized name
 *
 * Lines used by friend rows or comments are not reused as post body.
 */

package parser

import (
	"strings"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	MinPostBodyLength = 10
	maxNameTokens     = 6
	maxNamePartTokens = 3
)

// Parser extracts entities from recognized text
type Parser struct {
	chrome     map[string]bool
	connectors map[string]bool
}

// NewParser builds a parser from the lexicon's parser tables
func NewParser(lex *lexicon.Lexicon) *Parser {
	chrome := make(map[string]bool, len(lex.Parser.ChromePhrases))
	for _, p := range lex.Parser.ChromePhrases {
		chrome[normalizeChrome(p)] = true
	}

	connectors := make(map[string]bool)
	for _, c := range lex.Parser.NameConnectors {
		for _, part := range strings.Fields(strings.ToLower(c)) {
			connectors[part] = true
		}
	}

	return &Parser{chrome: chrome, connectors: connectors}
}

type lineKey struct {
	source string
	index  int
}

func keyOf(l model.Line) lineKey {
	return lineKey{source: l.SourceID, index: l.Index}
}

// Parse extracts entities. When lines or blocks are missing they are derived from text.
func (p *Parser) Parse(text string, lines []model.Line, blocks []model.Block) []model.ParsedEntity {
	if len(lines) == 0 {
		lines, blocks = linesFromText(text)
	} else if len(blocks) == 0 {
		blocks = []model.Block{{Lines: lines}}
	}

	consumed := make(map[lineKey]bool)
	var entities []model.ParsedEntity

	entities = append(entities, p.friendRows(lines, consumed)...)
	entities = append(entities, p.comments(lines, consumed)...)
	for _, b := range blocks {
		if post, ok := p.post(b, consumed); ok {
			entities = append(entities, post)
		}
	}

	return Dedupe(entities)
}

func linesFromText(text string) ([]model.Line, []model.Block) {
	var lines []model.Line
	var blocks []model.Block
	current := model.Block{}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		s := strings.TrimSpace(raw)
		if s == "" {
			if len(current.Lines) > 0 {
				blocks = append(blocks, current)
				current = model.Block{}
			}
			continue
		}
		line := model.Line{Text: s, Index: len(lines), Confidence: 1}
		lines = append(lines, line)
		current.Lines = append(current.Lines, line)
	}
	if len(current.Lines) > 0 {
		blocks = append(blocks, current)
	}
	return lines, blocks
}

// IsChrome reports whether a line is UI chrome (buttons, section headers)
func (p *Parser) IsChrome(line string) bool {
	norm := normalizeChrome(line)
	if norm == "" {
		return true
	}
	if p.chrome[norm] {
		return true
	}

	// "Like · Reply · Share" style rows
	parts := strings.FieldsFunc(norm, func(r rune) bool { return r == '·' || r == '•' || r == '|' })
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" && !p.chrome[part] && !IsTimestamp(part) {
			return false
		}
	}
	return true
}

func normalizeChrome(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, ".!:…")
}

// IsName reports whether line looks like a person's name: capitalized tokens,
// optionally joined by lowercase connector particles, no trailing punctuation,
// not UI chrome.
func (p *Parser) IsName(line string) bool {
	return p.isNameWithin(line, maxNameTokens)
}

func (p *Parser) isNameWithin(line string, maxTokens int) bool {
	line = strings.TrimSpace(line)
	if line == "" || !endsWithLetter(line) || p.IsChrome(line) {
		return false
	}

	tokens := strings.Fields(line)
	if len(tokens) > maxTokens {
		return false
	}

	for i, tok := range tokens {
		if isCapitalizedWord(tok) {
			continue
		}
		// connectors only between capitalized words
		if i > 0 && i < len(tokens)-1 && p.connectors[tok] {
			continue
		}
		return false
	}
	return true
}

func (p *Parser) friendRows(lines []model.Line, consumed map[lineKey]bool) []model.ParsedEntity {
	var out []model.ParsedEntity

	for i := 0; i < len(lines); i++ {
		if consumed[keyOf(lines[i])] || !p.IsName(lines[i].Text) {
			continue
		}

		sameSource := func(j int) bool {
			return j < len(lines) && lines[j].SourceID == lines[i].SourceID && !consumed[keyOf(lines[j])]
		}

		// name, count
		if sameSource(i + 1) {
			if n, ok := ParseMutualCount(lines[i+1].Text); ok {
				out = append(out, friendEntity(lines[i], lines[i].Text, n, nil))
				consumed[keyOf(lines[i])] = true
				consumed[keyOf(lines[i+1])] = true
				i++
				continue
			}
		}

		// name, (second name line | extra info | chrome), count
		if !sameSource(i+1) || !sameSource(i+2) {
			continue
		}
		n, ok := ParseMutualCount(lines[i+2].Text)
		if !ok {
			continue
		}

		middle := lines[i+1].Text
		name := lines[i].Text
		var extra *string
		switch {
		case p.isMultiLineName(lines[i].Text, middle):
			name = lines[i].Text + " " + middle
		case p.IsChrome(middle):
			// "Add friend" and similar buttons carry no information
		default:
			extra = model.StringPtr(middle)
		}

		out = append(out, friendEntity(lines[i], name, n, extra))
		consumed[keyOf(lines[i])] = true
		consumed[keyOf(lines[i+1])] = true
		consumed[keyOf(lines[i+2])] = true
		i += 2
	}

	return out
}

// isMultiLineName accepts two short name fragments that form a name together
func (p *Parser) isMultiLineName(first, second string) bool {
	if len(strings.Fields(first)) > maxNamePartTokens || len(strings.Fields(second)) > maxNamePartTokens {
		return false
	}
	return p.isNameWithin(second, maxNamePartTokens) && p.IsName(first+" "+second)
}

func friendEntity(line model.Line, name string, mutual int, extra *string) model.ParsedEntity {
	return model.ParsedEntity{
		Kind: model.KindFriendRow,
		Friend: &model.FriendRow{
			Name:        strings.Join(strings.Fields(name), " "),
			MutualCount: model.IntPtr(mutual),
			ExtraInfo:   extra,
		},
		Provenance: model.Provenance{SourceID: line.SourceID, LineIndex: line.Index},
		Confidence: line.Confidence,
	}
}

func (p *Parser) comments(lines []model.Line, consumed map[lineKey]bool) []model.ParsedEntity {
	var out []model.ParsedEntity

	for _, line := range lines {
		if consumed[keyOf(line)] {
			continue
		}
		author, text, ok := SplitComment(line.Text)
		if !ok || !p.IsName(author) {
			continue
		}

		body, ts := StripTimestamp(text)
		if body == "" || p.IsChrome(body) {
			// "<Name> · 2h" is a post header, not a comment
			continue
		}

		comment := &model.Comment{Author: author, Text: body}
		if ts != "" {
			comment.Timestamp = model.StringPtr(ts)
		}
		out = append(out, model.ParsedEntity{
			Kind:       model.KindComment,
			Comment:    comment,
			Provenance: model.Provenance{SourceID: line.SourceID, LineIndex: line.Index},
			Confidence: line.Confidence,
		})
		consumed[keyOf(line)] = true
	}

	return out
}

func (p *Parser) post(block model.Block, consumed map[lineKey]bool) (model.ParsedEntity, bool) {
	var lines []model.Line
	for _, l := range block.Lines {
		if !consumed[keyOf(l)] && !p.IsChrome(l.Text) {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return model.ParsedEntity{}, false
	}

	post := &model.Post{}
	rest := lines

	first := lines[0].Text
	if p.IsName(first) {
		post.Author = model.StringPtr(first)
		rest = lines[1:]
	} else if author, tail, ok := SplitComment(first); ok && p.IsName(author) && IsTimestamp(tail) {
		post.Author = model.StringPtr(author)
		post.Timestamp = model.StringPtr(tail)
		rest = lines[1:]
	}

	var body []string
	for _, l := range rest {
		text := l.Text
		if counts, ok := ParseCountLine(text); ok {
			applyCounts(post, counts)
			continue
		}
		if IsTimestamp(text) {
			if post.Timestamp == nil {
				post.Timestamp = model.StringPtr(text)
			}
			continue
		}
		body = append(body, text)
	}

	post.Text = strings.Join(body, " ")
	if len([]rune(post.Text)) < MinPostBodyLength {
		return model.ParsedEntity{}, false
	}

	var conf float64
	for _, l := range lines {
		conf += l.Confidence
	}

	return model.ParsedEntity{
		Kind:       model.KindPost,
		Post:       post,
		Provenance: model.Provenance{SourceID: lines[0].SourceID, LineIndex: lines[0].Index},
		Confidence: conf / float64(len(lines)),
	}, true
}

func applyCounts(post *model.Post, counts map[CountKind]int) {
	for kind, n := range counts {
		switch kind {
		case CountReactions:
			post.ReactionCount = model.IntPtr(n)
		case CountComments:
			post.CommentCount = model.IntPtr(n)
		case CountShares:
			post.ShareCount = model.IntPtr(n)
		}
	}
}
