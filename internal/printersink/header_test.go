package printersink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteHeaderEmitsOverloadSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "printerOutput.hpp")
	if err := WriteHeader(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{
		"#pragma once",
		"printdata(const std::vector<T>",
		"printdata(const std::deque<T>",
		"printdata(std::string_view str",
		"printdata(const std::mutex &mtx",
		"printdata(const std::unordered_map<K, V>",
		"struct is_printable",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("printerOutput.hpp missing %q:\n%s", want, got)
		}
	}
}

func TestWriteHeaderTruncatesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "printerOutput.hpp")
	if err := os.WriteFile(path, []byte("stale content that must not survive"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteHeader(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "stale content") {
		t.Error("expected WriteHeader to truncate the prior file content")
	}
}
