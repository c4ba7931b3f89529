package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutoLink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no urls",
			in:   "<p>how do I deploy?</p>",
			want: "<p>how do I deploy?</p>",
		},
		{
			name: "short url",
			in:   "<p>see https://go.dev now</p>",
			want: `<p>see <a href="https://go.dev" target="_blank">https://go.dev</a> now</p>`,
		},
		{
			name: "trailing punctuation",
			in:   "see https://go.dev.",
			want: `see <a href="https://go.dev" target="_blank">https://go.dev</a>.`,
		},
		{
			name: "www prefix",
			in:   "www.example.com",
			want: `<a href="http://www.example.com" target="_blank">www.example.com</a>`,
		},
		{
			name: "long url truncated",
			in:   "https://example.com/a/very/long/path/to/a/document",
			want: `<a href="https://example.com/a/very/long/path/to/a/document" target="_blank">https://example...h/to/a/document</a>`,
		},
		{
			name: "balanced parens kept",
			in:   "https://en.wikipedia.org/wiki/Go_(programming_language)",
			want: `<a href="https://en.wikipedia.org/wiki/Go_(programming_language)" target="_blank">https://en.wiki...mming_language)</a>`,
		},
		{
			name: "enclosing parens dropped",
			in:   "(see https://go.dev/doc)",
			want: `(see <a href="https://go.dev/doc" target="_blank">https://go.dev/doc</a>)`,
		},
		{
			name: "bare domain",
			in:   "try go.dev today",
			want: `try <a href="http://go.dev" target="_blank">go.dev</a> today`,
		},
		{
			name: "email",
			in:   "mail ops@example.com",
			want: `mail <a href="mailto:ops@example.com" target="_blank">ops@example.com</a>`,
		},
		{
			name: "existing anchor untouched",
			in:   `<a href="https://go.dev">https://go.dev</a>`,
			want: `<a href="https://go.dev">https://go.dev</a>`,
		},
		{
			name: "uppercase tags preserved",
			in:   `<B>https://go.dev</B>`,
			want: `<B><a href="https://go.dev" target="_blank">https://go.dev</a></B>`,
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AutoLink(tt.in))
		})
	}
}

func TestTruncateLabel(t *testing.T) {
	assert.Equal(t, "https://go.dev", truncateLabel("https://go.dev"))
	assert.Equal(t, "abcdefghijklmno...pqrstuvwxyz0123",
		truncateLabel("abcdefghijklmnoXXXXXpqrstuvwxyz0123"))
}
