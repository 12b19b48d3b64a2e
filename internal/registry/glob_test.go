package registry

import "testing"

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"a/d.tar", "a/d.tar", true},
		{"*.tar", "a/d.tar", false},
		{"a/*.tar", "a/d.tar", true},
		{"**/*.tar", "a/b/c.tar", true},
		{"**/*.tar", "a/d.tar", true},
		{"**/*.tar", "a/b/e.txt", false},
		{"a/?.tar", "a/d.tar", true},
		{"a/?.tar", "a/dd.tar", false},
		{"a/[bd].tar", "a/b.tar", true},
		{"a/[bd].tar", "a/c.tar", false},
		{"a/[a-c].tar", "a/b.tar", true},
		{"a/[!a-c].tar", "a/b.tar", false},
		{"a/[!a-c].tar", "a/d.tar", true},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.key); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.key, got, c.want)
		}
	}
}

func TestGlobPrefix(t *testing.T) {
	cases := map[string]string{
		"a/b/c.tar":  "a/b/c.tar",
		"a/*.tar":    "a/",
		"**/*.tar":   "",
		"a/b/*":      "a/b/",
		"a/[bd].tar": "a/",
	}
	for pattern, want := range cases {
		if got := globPrefix(pattern); got != want {
			t.Errorf("globPrefix(%q) = %q, want %q", pattern, got, want)
		}
	}
}

func TestPathMappingLongestPrefixWins(t *testing.T) {
	m := NewPathMapping(map[string]string{
		"s3://bucket/":      "msc://short/",
		"s3://bucket/deep/": "msc://long/",
	})
	got, ok := m.Resolve("s3://bucket/deep/file.txt")
	if !ok || got != "msc://long/file.txt" {
		t.Fatalf("expected longest-prefix match to win, got %q ok=%v", got, ok)
	}
}

func TestSynthesizeImplicitProfileStable(t *testing.T) {
	p1, key1, err := SynthesizeImplicitProfile("s3://my-bucket/path/to/obj")
	if err != nil {
		t.Fatalf("SynthesizeImplicitProfile: %v", err)
	}
	p2, _, err := SynthesizeImplicitProfile("s3://my-bucket/other/obj")
	if err != nil {
		t.Fatalf("SynthesizeImplicitProfile: %v", err)
	}
	if p1.Name != p2.Name {
		t.Fatalf("expected stable implicit profile naming, got %q and %q", p1.Name, p2.Name)
	}
	if p1.Name != "_s3-my-bucket" || key1 != "path/to/obj" {
		t.Fatalf("unexpected implicit profile: %+v key=%q", p1, key1)
	}
}
