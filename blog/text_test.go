package blog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Go Generics in Practice!":        "go-generics-in-practice",
		"  Hello,   World  ":              "hello-world",
		"AI -- The Next   Decade":         "ai-the-next-decade",
		"snake_case stays":                "snake_case-stays",
		"Kubernetes 1.30: What's New?":    "kubernetes-130-whats-new",
		"":                                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestReadingMinutes(t *testing.T) {
	assert.Equal(t, 0, ReadingMinutes(""))
	assert.Equal(t, 1, ReadingMinutes("just a few words"))
	assert.Equal(t, 1, ReadingMinutes(strings.Repeat("word ", 200)))
	assert.Equal(t, 2, ReadingMinutes(strings.Repeat("word ", 201)))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "Short post.", Excerpt("## Short post.", 160))

	content := "First sentence here. Second sentence is a bit longer. Third one would overflow the limit for sure."
	assert.Equal(t, "First sentence here. Second sentence is a bit longer.", Excerpt(content, 60))

	long := strings.Repeat("word ", 100)
	got := Excerpt(long, 30)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 33)
}
