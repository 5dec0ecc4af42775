package commitmsg

import (
	"log/slog"
	"strings"
)

const (
	begin = "--- dispatched files begin ---"
	end   = "--- dispatched files end ---"
)

// Extract returns the lines found between the dispatched
// files markers of msg. It returns nil when the section is
// missing or not terminated.
func Extract(msg string) []string {
	var lines []string

	betweenMarkers := false

	for _, line := range strings.Split(msg, "\n") {
		switch line {
		case begin:
			betweenMarkers = true
		case end:
			betweenMarkers = false
		default:
			if betweenMarkers {
				lines = append(lines, line)
			}
		}
	}

	if betweenMarkers {
		slog.Warn("unable to find end marker in commit message")

		return nil
	}

	return lines
}

// Generate produces a commit message made of title followed
// by a section listing lines between begin/end markers. The
// section is omitted when lines is empty.
func Generate(title string, lines []string) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(title))
	sb.WriteByte('\n')

	if len(lines) == 0 {
		return sb.String()
	}

	sb.WriteByte('\n')
	sb.WriteString(begin)
	sb.WriteByte('\n')

	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}

	sb.WriteString(end)
	sb.WriteByte('\n')

	return sb.String()
}
