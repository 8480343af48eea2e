package textutil

import "testing"

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Pride and Prejudice":    "pride-and-prejudice",
		"  The Time-Machine!  ":  "the-time-machine",
		"Les Misérables":         "les-mis-rables",
		"***":                    "",
		"":                       "",
		"Vol. 2: Return":         "vol-2-return",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugOr(t *testing.T) {
	if got := SlugOr("?!", "untitled"); got != "untitled" {
		t.Fatalf("SlugOr fallback = %q", got)
	}
	if got := SlugOr("Emma", "untitled"); got != "emma" {
		t.Fatalf("SlugOr = %q", got)
	}
}
