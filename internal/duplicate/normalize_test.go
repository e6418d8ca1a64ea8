package duplicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trims and lowercases", input: "  Hello World  ", want: "hello world"},
		{name: "collapses whitespace", input: "a \t\n  b", want: "a b"},
		{name: "curly double quotes", input: "“Quoted”", want: `"quoted"`},
		{name: "curly apostrophes", input: "It’s ‘fine’", want: "it's 'fine'"},
		{name: "em and en dash", input: "one—two–three", want: "one-two-three"},
		{name: "ellipsis", input: "Wait…", want: "wait..."},
		{name: "keeps trailing period", input: "Done.", want: "done."},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func TestNormalizeAuthor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "strips trailing period", input: "Steve Jobs.", want: "steve jobs"},
		{name: "no period", input: "Steve Jobs", want: "steve jobs"},
		{name: "period then space", input: "Anon. ", want: "anon"},
		{name: "keeps inner periods", input: "J.R.R. Tolkien", want: "j.r.r. tolkien"},
		{name: "only periods", input: "...", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAuthor(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"  The  “only” way—to do…great work.  ",
		"Author..",
		"Mr. . .",
		"“”‘’—–…",
		"MiXeD\tCaSe\n",
		"",
	}

	for _, in := range inputs {
		once := NormalizeText(in)
		assert.Equal(t, once, NormalizeText(once), "text %q", in)

		onceAuthor := NormalizeAuthor(in)
		assert.Equal(t, onceAuthor, NormalizeAuthor(onceAuthor), "author %q", in)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("The only way…  to do it.", "Steve Jobs.")
	b := Fingerprint("the ONLY way... to do it.", "steve jobs")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint("The only way to do it", "Steve Jobs"))
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}
