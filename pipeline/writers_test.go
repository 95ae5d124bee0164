package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-douban/models"
)

func sampleResult() *models.CollectionResult {
	return Normalize([]models.RawRecord{
		{
			ID:          "2567698",
			Title:       "三体",
			Author:      "刘慈欣",
			Rating:      4.5,
			ImageURL:    "https://img1.doubanio.com/s2768378.jpg",
			Note:        "2024-03-18 读过, 神作",
			DateUpdated: "2024-03-18",
		},
		{ID: "1084336", Title: "小王子", Author: models.UnknownAuthor, DateUpdated: "2025-11-04"},
	})
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collection.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if diff := cmp.Diff(csvHeader, records[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	want := []string{"2567698", "三体", "刘慈欣", "4.5", "https://img1.doubanio.com/s2768378.jpg", "read", "2024-03-18", "2024-03-18 读过, 神作"}
	if diff := cmp.Diff(want, records[1]); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
	if records[2][3] != "0" || records[2][4] != "" {
		t.Fatalf("defaults not written: %v", records[2])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "collection.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	result := sampleResult()
	if err := writer.Write(result); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded models.CollectionResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if diff := cmp.Diff(*result, decoded); diff != "" {
		t.Fatalf("decoded mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONWriterEmptyCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(Normalize(nil)); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	var decoded map[string]any
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	collections, ok := decoded["collections"].([]any)
	if !ok || len(collections) != 0 {
		t.Fatalf("collections = %#v, want empty array", decoded["collections"])
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewWriter(FormatDual, filepath.Join(dir, "collection.out"))
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	for _, name := range []string{"collection.csv", "collection.json"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty", name)
		}
	}
}

func TestNewWriterUnsupportedFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
