package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(filepath.Join(t.TempDir(), "outputs"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func sampleResult(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	err := json.Unmarshal([]byte(`{
		"Requirements": [
			{"Checks": ["iam_root_mfa_enabled", "iam_user_mfa_enabled"], "Name": "MFA <root>", "Id": "1.1",
			 "Attributes": [{"Service": "iam", "Section": "1 Identity", "ItemId": "1.1", "SubSection": "1.1 Accounts"}]},
			{"Id": "1.2", "Name": "Logging", "Attributes": [], "Checks": []}
		],
		"Provider": "AWS",
		"Framework": "CIS",
		"Name": "CIS AWS Foundations",
		"Version": null,
		"x_note": "kept"
	}`), &m)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSanitizeAndFileName(t *testing.T) {
	cases := map[string]string{
		"CIS 2.0":      "CIS_2_0",
		"  ENS / RD ":  "ENS_RD",
		"ISO-27001":    "ISO-27001",
		"__a__b__":     "a_b",
		"Évaluation 1": "Évaluation_1",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}

	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	if got := FileName(id, "json", "CIS 2.0", "aws"); got != "CIS_2_0_aws.json" {
		t.Errorf("FileName = %q", got)
	}
	if got := FileName(id, "xlsx", "", "aws"); got != id.String()+".xlsx" {
		t.Errorf("FileName fallback = %q", got)
	}
	if got := DownloadName("CIS v8", "gcp", "json"); got != "CIS_v8_gcp.json" {
		t.Errorf("DownloadName = %q", got)
	}
	if got := DownloadName("", "gcp", "xlsx"); got != "mapping_gcp.xlsx" {
		t.Errorf("DownloadName default = %q", got)
	}
}

func TestExportJSON(t *testing.T) {
	s := newTestService(t)
	result := sampleResult(t)

	path, err := s.ExportJSON(uuid.New(), result, "CIS", "aws")
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if filepath.Base(path) != "CIS_aws.json" {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)

	if !strings.HasPrefix(text, "{\n  \"Framework\": \"CIS\",\n  \"Name\": \"CIS AWS Foundations\",\n  \"Version\": null,\n  \"Provider\": \"AWS\",\n  \"Requirements\": [") {
		t.Fatalf("unexpected key order:\n%s", text)
	}
	if !strings.Contains(text, `"MFA <root>"`) {
		t.Fatalf("html escaped output:\n%s", text)
	}
	if strings.Index(text, `"ItemId"`) > strings.Index(text, `"Section"`) {
		t.Fatalf("attribute keys out of order:\n%s", text)
	}
	if !strings.Contains(text, `"x_note": "kept"`) {
		t.Fatalf("unknown key dropped:\n%s", text)
	}

	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(back["Requirements"].([]any)) != 2 {
		t.Fatalf("requirements = %v", back["Requirements"])
	}
}

func TestExportExcel(t *testing.T) {
	s := newTestService(t)
	path, err := s.ExportExcel(uuid.New(), sampleResult(t), "CIS", "aws")
	if err != nil {
		t.Fatalf("ExportExcel: %v", err)
	}
	if filepath.Base(path) != "CIS_aws.xlsx" {
		t.Fatalf("path = %s", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); strings.Join(got, "|") != "Summary|Requirements|Check Mappings" {
		t.Fatalf("sheets = %v", got)
	}

	cell := func(sheet, ref string) string {
		t.Helper()
		v, err := f.GetCellValue(sheet, ref)
		if err != nil {
			t.Fatalf("GetCellValue(%s!%s): %v", sheet, ref, err)
		}
		return v
	}

	checks := []struct{ sheet, ref, want string }{
		{"Summary", "A1", "Framework"},
		{"Summary", "B2", "CIS AWS Foundations"},
		{"Summary", "B3", ""},
		{"Summary", "B6", "2"},
		{"Requirements", "A1", "Control ID"},
		{"Requirements", "D2", "1 Identity"},
		{"Requirements", "E2", "1.1 Accounts"},
		{"Requirements", "F2", "iam"},
		{"Requirements", "G2", "iam_root_mfa_enabled, iam_user_mfa_enabled"},
		{"Requirements", "D3", ""},
		{"Check Mappings", "C2", "iam_root_mfa_enabled"},
		{"Check Mappings", "C3", "iam_user_mfa_enabled"},
		{"Check Mappings", "A4", ""},
	}
	for _, c := range checks {
		if got := cell(c.sheet, c.ref); got != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.ref, got, c.want)
		}
	}

	styleID, err := f.GetCellStyle("Requirements", "A1")
	if err != nil {
		t.Fatal(err)
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		t.Fatal(err)
	}
	if style.Font == nil || !style.Font.Bold || len(style.Fill.Color) == 0 || !strings.Contains(strings.ToUpper(style.Fill.Color[0]), headerFill) {
		t.Fatalf("header style = %+v", style)
	}
}

func TestWriteBatchZip(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	if err := os.WriteFile(a, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := WriteBatchZip(&buf, []ZipEntry{
		{Path: a, Name: "CIS_aws.json"},
		{Path: filepath.Join(dir, "missing.xlsx"), Name: "CIS_aws.xlsx"},
	})
	if err != nil {
		t.Fatalf("WriteBatchZip: %v", err)
	}
	if n != 1 {
		t.Fatalf("written = %d, want 1", n)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "CIS_aws.json" || zr.File[0].Method != zip.Deflate {
		t.Fatalf("entries = %+v", zr.File)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"a":1}` {
		t.Fatalf("body = %q", body)
	}
}
