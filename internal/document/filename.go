package document

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SecureFilename reduces a client-supplied filename to a flat, ASCII-only
// name made of letters, digits, '_', '-' and '.'. Path separators become
// word breaks, runs of whitespace become a single '_', and leading or
// trailing dots and underscores are removed. The result may be empty.
//
//	SecureFilename("My cool movie.mov")          == "My_cool_movie.mov"
//	SecureFilename("../../../etc/passwd")        == "etc_passwd"
//	SecureFilename("i contain cool ümläuts.txt") == "i_contain_cool_umlauts.txt"
func SecureFilename(name string) string {
	name = norm.NFKD.String(strings.ToValidUTF8(name, ""))

	var ascii strings.Builder
	ascii.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			ascii.WriteByte(' ')
		case r < 0x80:
			ascii.WriteRune(r)
		}
	}

	joined := strings.Join(strings.Fields(ascii.String()), "_")

	var out strings.Builder
	out.Grow(len(joined))
	for i := 0; i < len(joined); i++ {
		if c := joined[i]; isSafeByte(c) {
			out.WriteByte(c)
		}
	}
	return strings.Trim(out.String(), "._")
}

func isSafeByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-'
}
