package assemble

import (
	"bytes"
	"testing"

	"golang.org/x/net/html"
)

func renderAll(t *testing.T, nodes []*html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			t.Fatalf("render: %v", err)
		}
	}
	return buf.String()
}

func TestParseFragment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "well formed xml",
			in:   "<p>مرحبا <b>بالعالم</b>.</p>",
			want: "<p>مرحبا <b>بالعالم</b>.</p>",
		},
		{
			name: "multiple top level nodes",
			in:   "<p>a</p><p>b</p>",
			want: "<p>a</p><p>b</p>",
		},
		{
			name: "bare text node",
			in:   "plain text",
			want: "plain text",
		},
		{
			name: "bare ampersand escaped on retry",
			in:   "<p>Tom & Jerry</p>",
			want: "<p>Tom &amp; Jerry</p>",
		},
		{
			name: "entity survives",
			in:   "<p>a &amp; b</p>",
			want: "<p>a &amp; b</p>",
		},
		{
			name: "unclosed tag falls back to lenient html",
			in:   "<p>unclosed",
			want: "<p>unclosed</p>",
		},
		{
			name: "attributes preserved",
			in:   `<p class="x">t</p>`,
			want: `<p class="x">t</p>`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			nodes, err := ParseFragment(tc.in)
			if err != nil {
				t.Fatalf("ParseFragment(%q): %v", tc.in, err)
			}
			if got := renderAll(t, nodes); got != tc.want {
				t.Errorf("ParseFragment(%q) rendered %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestEscapeBareAmpersands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"a & b", "a &amp; b"},
		{"a &amp; b", "a &amp; b"},
		{"a &#160; b", "a &#160; b"},
		{"a &#x1F600; b", "a &#x1F600; b"},
		{"trailing &", "trailing &amp;"},
		{"&bogus stuff", "&amp;bogus stuff"},
	}

	for _, tc := range tests {
		if got := escapeBareAmpersands(tc.in); got != tc.want {
			t.Errorf("escapeBareAmpersands(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
