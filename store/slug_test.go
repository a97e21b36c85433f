package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Nova":              "nova",
		"  DJ  Omega!! ":    "dj-omega",
		"---already-slug--": "already-slug",
		"Ünïcödé Náme":      "n-c-d-n-me",
		"":                  "",
		"!!!":               "",
		"MiXeD CaSe 42":     "mixed-case-42",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{"Nova Star", "  weird -- input  ", "UPPER", "a1 b2 c3", "日本語タイトル"}
	for _, in := range inputs {
		once := Slugify(in)
		assert.Equal(t, once, Slugify(once), "input %q", in)
	}
}
