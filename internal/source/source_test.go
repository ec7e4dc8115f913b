package source

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/simgroup/internal/config"
	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/storage"
)

func TestParseBytes_json(t *testing.T) {
	content := []byte(`[
		{"id": "p1", "name": "Louvre", "city": "Paris", "Opening Hours": "9-18", "rating": 4.5},
		{"id": "p2", "name": "Prado", "attributes": {"country": "ES", "free": true}}
	]`)
	recs, err := ParseBytes(content, ".json")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "p1" || recs[0].Name != "Louvre" || recs[0].City != "Paris" {
		t.Errorf("unexpected first record: %+v", recs[0])
	}
	if recs[0].Field("opening_hours") != "9-18" || recs[0].Field("rating") != "4.5" {
		t.Errorf("extra keys should become attributes: %v", recs[0].Attributes)
	}
	if recs[1].Field("country") != "ES" || recs[1].Field("free") != "true" {
		t.Errorf("nested attributes should be flattened: %v", recs[1].Attributes)
	}
}

func TestParseBytes_jsonNestedRejected(t *testing.T) {
	_, err := ParseBytes([]byte(`[{"id": "p1", "geo": {"lat": 1}}]`), ".json")
	if err == nil || !strings.Contains(err.Error(), "geo") {
		t.Errorf("expected error naming the nested field, got %v", err)
	}
}

func TestParseBytes_jsonInvalid(t *testing.T) {
	if _, err := ParseBytes([]byte(`{"id": 1}`), ".json"); err == nil {
		t.Error("expected error for non-array JSON")
	}
}

func writeWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.Bytes()
}

func TestParseBytes_excel(t *testing.T) {
	content := writeWorkbook(t, [][]any{
		{"ID", "Name", "City", "Opening Hours"},
		{"p1", "Sagrada Familia", "Barcelona", "9-20"},
		{"", "", "", ""},
		{"p2", "Park Güell", "Barcelona"},
	})
	recs, err := ParseBytes(content, ".xlsx")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records (blank row skipped), got %d", len(recs))
	}
	if recs[0].ID != "p1" || recs[0].Name != "Sagrada Familia" || recs[0].Field("opening_hours") != "9-20" {
		t.Errorf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Name != "Park Güell" || recs[1].Field("opening_hours") != "" {
		t.Errorf("unexpected second record: %+v", recs[1])
	}
}

func TestParseBytes_excelWithoutID(t *testing.T) {
	content := writeWorkbook(t, [][]any{{"Name"}, {"x"}})
	if _, err := ParseBytes(content, ".xlsx"); err == nil {
		t.Error("expected error when id column is missing")
	}
}

func writeODS(t *testing.T, contentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("mimetype")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("application/vnd.oasis.opendocument.spreadsheet"))
	w, err = zw.Create("content.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte(contentXML))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseBytes_ods(t *testing.T) {
	content := writeODS(t, `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content
  xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
  xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"
  xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
<office:body><office:spreadsheet>
<table:table table:name="Attractions">
  <table:table-row>
    <table:table-cell><text:p>ID</text:p></table:table-cell>
    <table:table-cell><text:p>Name</text:p></table:table-cell>
    <table:table-cell><text:p>City</text:p></table:table-cell>
    <table:table-cell table:number-columns-repeated="1020"/>
  </table:table-row>
  <table:table-row>
    <table:table-cell><text:p>p1</text:p></table:table-cell>
    <table:table-cell/>
    <table:table-cell><text:p>Paris</text:p></table:table-cell>
  </table:table-row>
  <table:table-row table:number-rows-repeated="3">
    <table:table-cell table:number-columns-repeated="3"/>
  </table:table-row>
  <table:table-row>
    <table:table-cell><text:p>p2</text:p></table:table-cell>
    <table:table-cell><text:p>Musée</text:p><text:p>d'Orsay</text:p></table:table-cell>
    <table:table-cell><text:p>Paris</text:p></table:table-cell>
  </table:table-row>
</table:table>
<table:table table:name="Other">
  <table:table-row><table:table-cell><text:p>ignored</text:p></table:table-cell></table:table-row>
</table:table>
</office:spreadsheet></office:body>
</office:document-content>`)

	recs, err := ParseBytes(content, ".ods")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(recs), recs)
	}
	if recs[0].ID != "p1" || recs[0].Name != "" || recs[0].City != "Paris" {
		t.Errorf("unexpected first record: %+v", recs[0])
	}
	if recs[1].ID != "p2" || recs[1].Name != "Musée d'Orsay" {
		t.Errorf("unexpected second record: %+v", recs[1])
	}
}

func TestParseBytes_odsNotZip(t *testing.T) {
	if _, err := ParseBytes([]byte("plain text"), ".ods"); err == nil {
		t.Error("expected error for non-zip ODS content")
	}
}

func TestParseBytes_csv(t *testing.T) {
	content := []byte("\xef\xbb\xbfid,Name,Category\np1,\"Tower, Eiffel\",landmark\n,,\np2,Louvre\n")
	recs, err := ParseBytes(content, ".csv")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "p1" || recs[0].Name != "Tower, Eiffel" || recs[0].Category != "landmark" {
		t.Errorf("unexpected first record: %+v", recs[0])
	}
	if recs[1].ID != "p2" || recs[1].Category != "" {
		t.Errorf("unexpected second record: %+v", recs[1])
	}
}

func TestParseBytes_unsupported(t *testing.T) {
	if _, err := ParseBytes([]byte("a\tb"), ".tsv"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attractions.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","name":"A"}]`), 0600); err != nil {
		t.Fatal(err)
	}
	recs, err := NewFileSource(path).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Errorf("got %+v", recs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileSource(path).Fetch(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestStoreSource_Fetch(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "src.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.UpsertRecords(ctx, []models.SourceRecord{{ID: "z"}, {ID: "y"}}); err != nil {
		t.Fatal(err)
	}

	src, err := New(&config.SourceConfig{Type: config.SourceSQLite}, store)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := src.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ID != "y" {
		t.Errorf("got %+v", recs)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(&config.SourceConfig{Type: config.SourceSQLite}, nil); err == nil {
		t.Error("sqlite source without store should fail")
	}
	if _, err := New(&config.SourceConfig{Type: config.SourceFile}, nil); err == nil {
		t.Error("file source without path should fail")
	}
	if _, err := New(&config.SourceConfig{Type: "ftp"}, nil); err == nil {
		t.Error("unknown source type should fail")
	}
	src, err := New(&config.SourceConfig{Type: config.SourceFile, Path: "x.json"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*FileSource); !ok {
		t.Errorf("expected *FileSource, got %T", src)
	}
}

func TestDecodeItems(t *testing.T) {
	items, err := DecodeItems(strings.NewReader(`[{"id":"a","vector":[1,0]},{"id":"b","vector":[0,1]}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].ID != "b" || items[1].Vector[1] != 1 {
		t.Errorf("got %+v", items)
	}
	if _, err := DecodeItems(strings.NewReader(`[{"vector":[1]}]`)); err == nil {
		t.Error("expected error for item without id")
	}
}

func TestLoadItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","vector":[0.5,0.5]}]`), 0600); err != nil {
		t.Fatal(err)
	}
	items, err := LoadItems(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Vector[0] != 0.5 {
		t.Errorf("got %+v", items)
	}
	if _, err := LoadItems(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
