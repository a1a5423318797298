package translator

import (
	"reflect"
	"testing"
)

func TestTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		markup string
		want   []string
	}{
		{
			name:   "simple pair",
			markup: "<p>Hello</p>",
			want:   []string{"</p", "<p"},
		},
		{
			name:   "nested with attributes",
			markup: `<p class="x">Hi <b>there</b>.</p>`,
			want:   []string{"</b", "</p", "<b", "<p"},
		},
		{
			name:   "self closing counts as opener",
			markup: "<p>a<br/>b</p>",
			want:   []string{"</p", "<br", "<p"},
		},
		{
			name:   "case sensitive",
			markup: "<P>x</P>",
			want:   []string{"</P", "<P"},
		},
		{
			name:   "no tags",
			markup: "plain text & more",
			want:   nil,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Tags(tc.markup)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Tags(%q) = %v, want %v", tc.markup, got, tc.want)
			}
		})
	}
}

func TestCheckIntegrity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		original   string
		translated string
		want       bool
	}{
		{"identical structure", "<p>Hello</p>", "<p>مرحبا</p>", true},
		{"reordered tags still match as multiset", "<p><b>a</b><i>b</i></p>", "<p><i>x</i><b>y</b></p>", true},
		{"dropped inline tag", "<p>Hi <b>there</b>.</p>", "<p>مرحبا هناك.</p>", false},
		{"added tag", "<p>x</p>", "<p><em>x</em></p>", false},
		{"case mismatch", "<p>x</p>", "<P>x</P>", false},
		{"attributes ignored", `<p class="a">x</p>`, `<p class="b">y</p>`, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CheckIntegrity(tc.original, tc.translated); got != tc.want {
				t.Errorf("CheckIntegrity(%q, %q) = %v, want %v", tc.original, tc.translated, got, tc.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "<p>x</p>", "<p>x</p>"},
		{"html fence", "```html\n<p>x</p>\n```", "<p>x</p>"},
		{"bare fence", "```\n<p>x</p>\n```", "<p>x</p>"},
		{"leading whitespace", "  ```html\n<p>x</p>\n```  ", "<p>x</p>"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := StripCodeFence(tc.in); got != tc.want {
				t.Errorf("StripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
