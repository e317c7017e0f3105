package document

import (
	"bufio"
	"bytes"
	"strings"
)

// IndexText turns uploaded bytes into the text that gets indexed: every
// line is trimmed of surrounding whitespace and the lines are joined with
// newlines. Invalid UTF-8 is dropped.
func IndexText(content []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), len(content)+1)

	var b strings.Builder
	b.Grow(len(content))
	first := true
	for sc.Scan() {
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(strings.TrimSpace(sc.Text()))
	}
	return strings.ToValidUTF8(b.String(), "")
}
