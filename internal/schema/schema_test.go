package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLearnAndCompareFieldRemoved(t *testing.T) {
	old := Learn(nil, map[string]any{"id": json1(1), "name": "a"})
	newer := Learn(nil, map[string]any{"id": json1(2)})

	changes := Compare(old, newer, "$")
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %+v", len(changes), changes)
	}
	if changes[0].Type != FieldRemoved || changes[0].Severity != SeverityBreaking {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestLearnAndCompareNewField(t *testing.T) {
	old := Learn(nil, map[string]any{"id": json1(1)})
	newer := Learn(nil, map[string]any{"id": json1(1), "email": "a@b.com"})

	changes := Compare(old, newer, "$")
	if len(changes) != 1 || changes[0].Type != NewField || changes[0].Severity != SeverityInfo {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestLearnAndCompareTypeChanged(t *testing.T) {
	old := Learn(nil, map[string]any{"count": json1(1)})
	newer := Learn(nil, map[string]any{"count": "1"})

	changes := Compare(old, newer, "$")
	if len(changes) != 1 || changes[0].Type != TypeChanged || changes[0].Severity != SeverityWarning {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestLearnAndCompareObjectToPrimitive(t *testing.T) {
	old := Learn(nil, map[string]any{"meta": map[string]any{"a": json1(1)}})
	newer := Learn(nil, map[string]any{"meta": "flat"})

	changes := Compare(old, newer, "$")
	found := false
	for _, c := range changes {
		if c.Path == "$.meta" && c.Type == ObjectToPrimitive && c.Severity == SeverityBreaking {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected object_to_primitive change on $.meta, got %+v", changes)
	}
}

func TestBuildReportDriftScore(t *testing.T) {
	changes := []Change{
		{Type: FieldRemoved, Severity: SeverityBreaking, Path: "$.id"},
		{Type: TypeChanged, Severity: SeverityWarning, Path: "$.count"},
		{Type: NewField, Severity: SeverityInfo, Path: "$.email"},
	}
	r := BuildReport(changes)
	if r.DriftScore != 15 {
		t.Fatalf("expected drift score 15, got %d", r.DriftScore)
	}
	if r.Breaking != 1 || r.Warning != 1 || r.Info != 1 {
		t.Fatalf("unexpected counts: %+v", r)
	}
}

func TestBuildReportCapsAtHundred(t *testing.T) {
	var changes []Change
	for i := 0; i < 20; i++ {
		changes = append(changes, Change{Type: FieldRemoved, Severity: SeverityBreaking, Path: "$.x"})
	}
	r := BuildReport(changes)
	if r.DriftScore != 100 {
		t.Fatalf("expected capped drift score 100, got %d", r.DriftScore)
	}
}

func TestGenerateEchoesRequestScalar(t *testing.T) {
	node := Learn(nil, map[string]any{"id": json1(1), "name": "original"})
	out := Generate(node, map[string]any{"name": "caller-supplied"})
	obj, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected object output, got %T", out)
	}
	if obj["name"] != "caller-supplied" {
		t.Fatalf("expected echoed scalar, got %v", obj["name"])
	}
}

func TestGenerateArrayLength(t *testing.T) {
	node := Learn(nil, []any{map[string]any{"id": json1(1)}})
	out := Generate(node, nil)
	arr, ok := out.([]any)
	if !ok {
		t.Fatalf("expected array output, got %T", out)
	}
	if len(arr) < 1 || len(arr) > 4 {
		t.Fatalf("expected 1-4 items, got %d", len(arr))
	}
}

func TestRegistrySaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")

	reg := NewRegistry(path)
	reg.ObserveResponse("/users/{id}", map[string]any{"id": json1(1), "name": "a"})
	if err := reg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewRegistry(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Has("/users/{id}") {
		t.Fatalf("expected endpoint to survive round trip")
	}
}

func TestRegistryLoadMissingFileIsNotError(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "missing.json"))
	if err := reg.Load(); err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
}

func TestOpenAPIComponentsIncludesLearnedEndpoints(t *testing.T) {
	reg := NewRegistry(filepath.Join(os.TempDir(), "unused.json"))
	reg.ObserveResponse("/orders/{id}", map[string]any{"id": json1(1)})
	components := reg.OpenAPIComponents()
	if _, ok := components["_orders__id_"]; !ok {
		t.Fatalf("expected component for endpoint, got keys %v", keysOf(components))
	}
}

func keysOf(m map[string]any) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}

func json1(n int) any {
	return float64(n)
}
