package telemetry

import "testing"

func TestMergeAttributesLaterOverridesEarlier(t *testing.T) {
	a := StaticAttributes{"env": "prod", "a": "1"}
	b := StaticAttributes{"env": "staging"}

	merged := MergeAttributes(a, b)

	found := make(map[string]string, len(merged))
	for _, kv := range merged {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found["env"] != "staging" {
		t.Fatalf("expected later provider to override 'env', got %q", found["env"])
	}
	if found["a"] != "1" {
		t.Fatalf("expected non-colliding key preserved, got %q", found["a"])
	}
}

func TestMergeAttributesPreservesFirstSeenOrder(t *testing.T) {
	a := StaticAttributes{"z": "1"}
	b := StaticAttributes{"a": "2"}

	merged := MergeAttributes(a, b)
	if len(merged) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(merged))
	}
	if string(merged[0].Key) != "z" {
		t.Fatalf("expected 'z' (first provider) to retain its position, got %q", merged[0].Key)
	}
}

func TestConfigAttributesEmptyProfileContributesNothing(t *testing.T) {
	c := ConfigAttributes{}
	if attrs := c.Attributes(); attrs != nil {
		t.Fatalf("expected no attributes for empty profile, got %v", attrs)
	}
}
