package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensions_Allowed(t *testing.T) {
	exts := NewExtensions("txt", ".text")

	tests := []struct {
		filename string
		want     bool
	}{
		{"notes.txt", true},
		{"notes.text", true},
		{"archive.tar.txt", true},
		{"notes.TXT", false},
		{"a.pdf", false},
		{"txt", false},
		{"notes.", false},
		{"notes.txt.pdf", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exts.Allowed(tt.filename), tt.filename)
	}
}

func TestKeyFor(t *testing.T) {
	exts := NewExtensions("txt", "text")

	tests := []struct {
		filename string
		key      string
		reason   Reason
	}{
		{"notes.txt", "notes.txt", ""},
		{"my notes.text", "my_notes.text", ""},
		{"../../etc/passwd.txt", "etc_passwd.txt", ""},
		{"", "", ReasonEmptyFilename},
		{"a.pdf", "", ReasonUnsupportedFormat},
		{"README", "", ReasonUnsupportedFormat},
		{".txt", "", ReasonUnsupportedFormat},
		{"///.txt", "", ReasonUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			key, reason := KeyFor(tt.filename, exts)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestSecureFilename(t *testing.T) {
	tests := map[string]string{
		"My cool movie.mov":          "My_cool_movie.mov",
		"../../../etc/passwd":        "etc_passwd",
		"i contain cool ümläuts.txt": "i_contain_cool_umlauts.txt",
		`C:\Users\me\notes.txt`:      "C_Users_me_notes.txt",
		"__init__.txt":               "init__.txt",
		"tab\tand  spaces.txt":       "tab_and_spaces.txt",
		"日本語":                        "",
		"a;b&c|d.txt":                "abcd.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

func TestIndexText(t *testing.T) {
	assert.Equal(t, "alpha beta\ngamma\n", IndexText([]byte("  alpha beta  \r\n\tgamma\n\n")))
	assert.Equal(t, "", IndexText(nil))
	assert.Equal(t, "ok", IndexText([]byte("o\xffk")))
}
