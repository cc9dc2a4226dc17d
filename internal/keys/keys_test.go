package keys

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var keyFormat = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f]{2}/[0-9a-f]{60}$`)

func TestDeriveKnownValue(t *testing.T) {
	// sha256("") = e3b0c442...
	assert.Equal(t, "e3/b0/c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Derive(""))
}

func TestDeriveFormat(t *testing.T) {
	for _, u := range []string{"", "http://example.com/a", "https://example.com/ü?q=1#frag", "not a url"} {
		k := Derive(u)
		assert.Regexp(t, keyFormat, k, "url %q", u)
		assert.Len(t, k, 66)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	u := "http://example.com/a"
	assert.Equal(t, Derive(u), Derive(u))
}

func TestDeriveDistinct(t *testing.T) {
	seen := make(map[string]string)
	urls := []string{
		"http://example.com/a",
		"http://example.com/b",
		"http://example.com/a/",
		"https://example.com/a",
		"http://example.com/a?x=1",
	}
	for _, u := range urls {
		k := Derive(u)
		if prev, ok := seen[k]; ok {
			t.Fatalf("key collision between %q and %q", prev, u)
		}
		seen[k] = u
	}
}
