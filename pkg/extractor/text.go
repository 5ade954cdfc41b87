package extractor

import (
	"bufio"
	"regexp"
	"strings"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// normalizeInline cleans up a string by trimming space and joining its lines
// with single spaces.
func normalizeInline(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(spaceRun.ReplaceAllString(scanner.Text(), " "))
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

// normalizeText keeps paragraph breaks: lines are trimmed, repeated spaces
// collapse to one and three or more newlines collapse to two.
func normalizeText(input string) string {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.ReplaceAll(input, "\r", "\n")
	lines := strings.Split(input, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	out := newlineRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}
