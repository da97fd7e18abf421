package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Relative and absolute timestamps as rendered by feed UIs
const timestampBody = `(?:` +
	`(?:\d+|an?)\s*(?:s|secs?|seconds?|m|mins?|minutes?|h|hrs?|hours?|d|days?|w|wks?|weeks?|mos?|months?|y|yrs?|years?)\s+ago` +
	`|\d{1,3}\s*[smhdwy]` +
	`|just now` +
	`|(?:yesterday|today)(?:\s+at\s+\d{1,2}:\d{2}\s*(?:am|pm)?)?` +
	`|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:,?\s+\d{4})?(?:\s+at\s+\d{1,2}:\d{2}\s*(?:am|pm)?)?` +
	`|\d{1,2}/\d{1,2}/\d{2,4}` +
	`|\d{4}-\d{2}-\d{2}` +
	`)`

var (
	timestampLine     = regexp.MustCompile(`(?i)^` + timestampBody + `$`)
	timestampEmbedded = regexp.MustCompile(`(?i)(?:^|[\s(])(` + timestampBody + `)(?:$|[\s).,])`)

	mutualLine = regexp.MustCompile(`(?i)^(\d[\d,]*(?:\.\d+)?\s*[km]?)\s+mutual\s+(?:friends?|connections?|contacts?)\b`)

	countToken = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*([km])?\s+(reactions?|likes?|comments?|shares?)\b`)

	// Bullet or middle dot between author and comment text
	commentLine = regexp.MustCompile(`^(.+?)\s*[•·]\s*(.+)$`)

	separators = regexp.MustCompile(`[\s•·|,]+`)
)

// CountKind is the engagement field a count line populates
type CountKind string

const (
	CountReactions CountKind = "reactions"
	CountComments  CountKind = "comments"
	CountShares    CountKind = "shares"
)

// IsTimestamp reports whether the whole line is a timestamp
func IsTimestamp(line string) bool {
	return timestampLine.MatchString(strings.TrimSpace(line))
}

// StripTimestamp removes the first embedded timestamp from text and returns both parts
func StripTimestamp(text string) (rest string, timestamp string) {
	loc := timestampEmbedded.FindStringSubmatchIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), ""
	}
	timestamp = text[loc[2]:loc[3]]
	rest = text[:loc[2]] + text[loc[3]:]
	rest = strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "•·-–"))
	return strings.Join(strings.Fields(rest), " "), timestamp
}

// ParseMutualCount extracts the count from a mutual-connections line
func ParseMutualCount(line string) (int, bool) {
	m := mutualLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	raw := strings.ToLower(strings.ReplaceAll(m[1], " ", ""))
	suffix := ""
	if strings.HasSuffix(raw, "k") || strings.HasSuffix(raw, "m") {
		suffix = raw[len(raw)-1:]
		raw = raw[:len(raw)-1]
	}
	n, ok := ParseCount(raw, suffix)
	return n, ok
}

// ParseCountLine reads "<n>[k|m] <reaction|comment|share>" tokens. It only
// succeeds when the line holds nothing but count tokens and separators.
func ParseCountLine(line string) (map[CountKind]int, bool) {
	line = strings.TrimSpace(line)
	matches := countToken.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return nil, false
	}

	counts := make(map[CountKind]int, len(matches))
	var leftover strings.Builder
	prev := 0
	for _, m := range matches {
		leftover.WriteString(line[prev:m[0]])
		prev = m[1]

		suffix := ""
		if m[4] >= 0 {
			suffix = strings.ToLower(line[m[4]:m[5]])
		}
		n, ok := ParseCount(line[m[2]:m[3]], suffix)
		if !ok {
			return nil, false
		}
		counts[countKind(line[m[6]:m[7]])] = n
	}
	leftover.WriteString(line[prev:])

	if separators.ReplaceAllString(leftover.String(), "") != "" {
		return nil, false
	}
	return counts, true
}

func countKind(word string) CountKind {
	word = strings.ToLower(word)
	switch {
	case strings.HasPrefix(word, "comment"):
		return CountComments
	case strings.HasPrefix(word, "share"):
		return CountShares
	default:
		return CountReactions
	}
}

// ParseCount converts "1.2" + "k" to 1200. Commas are thousands separators.
func ParseCount(number, suffix string) (int, bool) {
	number = strings.ReplaceAll(strings.TrimSpace(number), ",", "")
	v, err := strconv.ParseFloat(number, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	switch strings.ToLower(suffix) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	if v > math.MaxInt32 {
		return 0, false
	}
	return int(v + 0.5), true
}

// SplitComment splits "<author> • <text>" at the first separator
func SplitComment(line string) (author, text string, ok bool) {
	m := commentLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// isCapitalizedWord accepts "Maria", "O'Neil", "Jean-Luc", "Jr."
func isCapitalizedWord(tok string) bool {
	tok = strings.TrimSuffix(tok, ".")
	runes := []rune(tok)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for i, r := range runes[1:] {
		if unicode.IsLetter(r) {
			continue
		}
		if (r == '\'' || r == '’' || r == '-') && i+2 < len(runes) {
			continue
		}
		return false
	}
	return true
}

func endsWithLetter(s string) bool {
	runes := []rune(s)
	return len(runes) > 0 && unicode.IsLetter(runes[len(runes)-1])
}
