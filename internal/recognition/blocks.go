package recognition

import "strings"

// splitIntoBlocks splits text into trimmed lines grouped into contiguous runs.
// A blank line ends a block.
func splitIntoBlocks(text string) [][]string {
	blocks := [][]string{}
	current := []string{}
	var line strings.Builder

	endLine := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			current = append(current, s)
		} else if len(current) > 0 {
			blocks = append(blocks, current)
			current = []string{}
		}
		line.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\r':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			endLine()
		case '\n':
			endLine()
		default:
			line.WriteRune(runes[i])
		}
	}
	endLine()

	if len(current) > 0 {
		blocks = append(blocks, current)
	}

	return blocks
}
