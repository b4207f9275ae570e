package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTool_Execute(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "output.txt")

	wt := NewWriteTool(tmpDir)
	input := json.RawMessage(`{"filePath": "` + testFile + `", "content": "Hello, World!"}`)
	result, err := wt.Execute(context.Background(), input, testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !strings.Contains(result.Output, "Successfully") {
		t.Error("output should report success")
	}
	data, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("reading back failed: %v", err)
	}
	if string(data) != "Hello, World!" {
		t.Errorf("file content = %q", string(data))
	}
}

func TestWriteTool_CreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "subdir", "nested", "file.txt")

	wt := NewWriteTool(tmpDir)
	input := json.RawMessage(`{"filePath": "` + testFile + `", "content": "Nested content"}`)
	if _, err := wt.Execute(context.Background(), input, testContext()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("parents should have been created: %v", err)
	}
	if string(data) != "Nested content" {
		t.Errorf("file content = %q", string(data))
	}
}

func TestWriteTool_Overwrite(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "existing.txt")
	writeText(t, testFile, "Original")

	wt := NewWriteTool(tmpDir)
	input := json.RawMessage(`{"filePath": "` + testFile + `", "content": "Updated"}`)
	result, err := wt.Execute(context.Background(), input, testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, _ := os.ReadFile(testFile)
	if string(data) != "Updated" {
		t.Errorf("file should be replaced, got %q", string(data))
	}
	// Overwrite should carry a non-empty diff against the old content.
	if diff, _ := result.Metadata["diff"].(string); diff == "" {
		t.Error("overwrite should produce diff metadata")
	}
}

func TestWriteTool_Properties(t *testing.T) {
	wt := NewWriteTool("/tmp")

	if wt.ID() != "write" {
		t.Errorf("want ID 'write', got %q", wt.ID())
	}
	if !strings.Contains(wt.Description(), "file") {
		t.Error("description should mention 'file'")
	}

	var schema map[string]any
	if err := json.Unmarshal(wt.Parameters(), &schema); err != nil {
		t.Fatalf("parameters should be valid JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema should have properties")
	}
	for _, key := range []string{"filePath", "content"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
}

func TestWriteTool_InvalidInput(t *testing.T) {
	wt := NewWriteTool("/tmp")
	if _, err := wt.Execute(context.Background(), json.RawMessage(`{invalid json}`), testContext()); err == nil {
		t.Error("want error for malformed JSON input")
	}
}

func TestWriteTool_EmptyContent(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "empty.txt")

	wt := NewWriteTool(tmpDir)
	input := json.RawMessage(`{"filePath": "` + testFile + `", "content": ""}`)
	result, err := wt.Execute(context.Background(), input, testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Metadata["bytes"] != 0 {
		t.Errorf("want 0 bytes, got %v", result.Metadata["bytes"])
	}
	data, _ := os.ReadFile(testFile)
	if len(data) != 0 {
		t.Error("file should exist and be empty")
	}
}

func TestWriteTool_Metadata(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "meta.txt")
	content := "Test content"

	wt := NewWriteTool(tmpDir)
	input := json.RawMessage(`{"filePath": "` + testFile + `", "content": "` + content + `"}`)
	result, err := wt.Execute(context.Background(), input, testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Metadata["file"] != testFile {
		t.Errorf("want file %q in metadata, got %v", testFile, result.Metadata["file"])
	}
	if result.Metadata["bytes"] != len(content) {
		t.Errorf("want %d bytes in metadata, got %v", len(content), result.Metadata["bytes"])
	}
	if result.Metadata["additions"].(int) < 1 {
		t.Errorf("new file should count added lines, got %v", result.Metadata["additions"])
	}
}

func TestWriteTool_EinoTool(t *testing.T) {
	wt := NewWriteTool("/tmp")
	info, err := wt.EinoTool().Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Name != "write" {
		t.Errorf("want name 'write', got %q", info.Name)
	}
}
