package sourceprovider

import "testing"

func TestMemoryReadAndResolve(t *testing.T) {
	p := NewMemory(map[string]string{
		"main.tenor":         "import \"types/common.tenor\"\n",
		"types/common.tenor": "type Address { record { street: Text } }\n",
	})

	resolved, err := p.Resolve("main.tenor", "types/common.tenor")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != "types/common.tenor" {
		t.Fatalf("expected types/common.tenor, got %q", resolved)
	}

	if _, err := p.Read(resolved); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if _, err := p.Read("missing.tenor"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveNormalizesDotDot(t *testing.T) {
	p := NewMemory(map[string]string{
		"lib/types.tenor": "",
		"main.tenor":       "",
	})
	got, err := p.Resolve("lib/sub/child.tenor", "../types.tenor")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "lib/types.tenor" {
		t.Fatalf("expected lib/types.tenor, got %q", got)
	}
}

func TestCanonicalizeStripsDotSlash(t *testing.T) {
	p := NewMemory(nil)
	got, err := p.Canonicalize("./a/./b/../c.tenor")
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if got != "a/c.tenor" {
		t.Fatalf("expected a/c.tenor, got %q", got)
	}
}
