package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONCreatesDirsAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := WriteJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteJSON(path, map[string]int{"a": 2}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(blob) != "{\n  \"a\": 2\n}" {
		t.Fatalf("unexpected content %q", blob)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}
