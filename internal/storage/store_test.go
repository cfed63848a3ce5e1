package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"impactmap/internal/index"
	"impactmap/internal/lang"
	"impactmap/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.ErrorLevel})
}

func newStorage(t *testing.T, workspace string) *IndexStorage {
	t.Helper()
	return NewIndexStorage(workspace, []string{"java", "rs"}, []string{"target", "build"}, testLogger())
}

func writeSource(t *testing.T, workspace, rel, content string) string {
	t.Helper()
	path := filepath.Join(workspace, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleIndex() *index.CodeIndex {
	ci := index.NewCodeIndex()
	m := &lang.MethodInfo{
		Name:          "go",
		QualifiedName: "com.example.Main::go",
		FilePath:      "Main.java",
		LineRange:     lang.LineRange{Start: 3, End: 8},
		Calls:         []lang.MethodCall{{Target: "com.example.Foo::bar", Line: 5}},
		Http:          &lang.HttpAnnotation{Method: lang.HttpGet, Path: "svc/x"},
		KafkaOperations: []lang.KafkaOperation{
			{Kind: lang.KafkaProduce, Topic: "user-events", Line: 6},
		},
	}
	ci.AddMethod(m)
	ci.AddMethod(&lang.MethodInfo{
		Name:          "bar",
		QualifiedName: "com.example.Foo::bar",
		FilePath:      "Foo.java",
		LineRange:     lang.LineRange{Start: 1, End: 4},
	})
	return ci
}

// P6: save then load yields a structurally equal index
func TestSaveLoadRoundTrip(t *testing.T) {
	workspace := t.TempDir()
	writeSource(t, workspace, "Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	ci := sampleIndex()
	if err := storage.Save(ci); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !storage.Exists() {
		t.Fatal("index files should exist after save")
	}

	loaded, err := storage.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a valid index")
	}

	if !reflect.DeepEqual(ci.Methods(), loaded.Methods()) {
		t.Errorf("method keys differ: %v vs %v", ci.Methods(), loaded.Methods())
	}
	if !reflect.DeepEqual(ci.FindCallees("com.example.Main::go"), loaded.FindCallees("com.example.Main::go")) {
		t.Error("forward calls differ after round trip")
	}
	if !reflect.DeepEqual(ci.FindCallers("com.example.Foo::bar"), loaded.FindCallers("com.example.Foo::bar")) {
		t.Error("reverse calls differ after round trip")
	}
	if !reflect.DeepEqual(ci.FindKafkaProducers("user-events"), loaded.FindKafkaProducers("user-events")) {
		t.Error("kafka producers differ after round trip")
	}
	p1, _ := ci.FindHttpProvider(lang.HttpEndpoint{Method: lang.HttpGet, PathPattern: "svc/x"})
	p2, _ := loaded.FindHttpProvider(lang.HttpEndpoint{Method: lang.HttpGet, PathPattern: "svc/x"})
	if p1 != p2 {
		t.Error("http providers differ after round trip")
	}
}

// P7: unchanged workspace validates; any mtime or size change invalidates
func TestChecksumValidation(t *testing.T) {
	workspace := t.TempDir()
	path := writeSource(t, workspace, "src/Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	if err := storage.Save(sampleIndex()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	valid, _, err := storage.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("unchanged workspace should validate")
	}

	// size change invalidates
	if err := os.WriteFile(path, []byte("class Main { void extra() {} }"), 0644); err != nil {
		t.Fatal(err)
	}
	valid, reason, err := storage.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Error("changed file should invalidate the index")
	}
	if reason == "" {
		t.Error("invalidation should carry a reason")
	}
}

func TestChecksumMtimeSensitivity(t *testing.T) {
	workspace := t.TempDir()
	path := writeSource(t, workspace, "Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	before, err := storage.ComputeChecksum()
	if err != nil {
		t.Fatal(err)
	}

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	after, err := storage.ComputeChecksum()
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Error("mtime change must alter the checksum")
	}
}

func TestChecksumIgnoresNonSourceAndIgnoredDirs(t *testing.T) {
	workspace := t.TempDir()
	writeSource(t, workspace, "Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	before, err := storage.ComputeChecksum()
	if err != nil {
		t.Fatal(err)
	}

	writeSource(t, workspace, "README.md", "docs")
	writeSource(t, workspace, "target/Gen.java", "class Gen {}")
	writeSource(t, workspace, ".hidden/Secret.java", "class Secret {}")

	after, err := storage.ComputeChecksum()
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Error("non-source files and ignored directories must not affect the checksum")
	}
}

func TestLoadDegradesToNoCache(t *testing.T) {
	workspace := t.TempDir()
	writeSource(t, workspace, "Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	// absent index
	loaded, err := storage.Load()
	if err != nil || loaded != nil {
		t.Fatalf("absent index should load as nil, got %v %v", loaded, err)
	}

	// corrupt data file
	if err := storage.Save(sampleIndex()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ".impactmap", "index.data"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	loaded, err = storage.Load()
	if err != nil {
		t.Fatalf("corrupt data must degrade, not fail: %v", err)
	}
	if loaded != nil {
		t.Error("corrupt data should load as nil")
	}
}

func TestFormatVersionMismatchInvalidates(t *testing.T) {
	workspace := t.TempDir()
	writeSource(t, workspace, "Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	if err := storage.Save(sampleIndex()); err != nil {
		t.Fatal(err)
	}

	metaPath := filepath.Join(workspace, ".impactmap", "index.meta")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	tampered := []byte(string(raw))
	tampered = []byte(replaceOnce(string(tampered), "\"formatVersion\": 1", "\"formatVersion\": 99"))
	if err := os.WriteFile(metaPath, tampered, 0644); err != nil {
		t.Fatal(err)
	}

	valid, reason, err := storage.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Errorf("version mismatch should invalidate (reason %q)", reason)
	}
}

func TestClear(t *testing.T) {
	workspace := t.TempDir()
	writeSource(t, workspace, "Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	if err := storage.Save(sampleIndex()); err != nil {
		t.Fatal(err)
	}
	if err := storage.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if storage.Exists() {
		t.Error("index files should be gone after clear")
	}
	// clearing again is fine
	if err := storage.Clear(); err != nil {
		t.Errorf("second clear should be a no-op: %v", err)
	}
}

func TestInfo(t *testing.T) {
	workspace := t.TempDir()
	writeSource(t, workspace, "Main.java", "class Main {}")
	storage := newStorage(t, workspace)

	info, err := storage.Info()
	if err != nil || info != nil {
		t.Fatalf("absent index should yield nil info, got %v %v", info, err)
	}

	if err := storage.Save(sampleIndex()); err != nil {
		t.Fatal(err)
	}
	info, err = storage.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.MethodCount != 2 {
		t.Errorf("unexpected metadata: %+v", info)
	}
}

func replaceOnce(s, old, new string) string {
	for i := 0; i+len(old) <= len(s); i++ {
		if s[i:i+len(old)] == old {
			return s[:i] + new + s[i+len(old):]
		}
	}
	return s
}
