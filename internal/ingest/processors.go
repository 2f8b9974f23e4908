package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/control-mapper/internal/common"
)

func (e *Extractor) extractPDF(ctx context.Context, path string) (string, map[string]any, error) {
	if e.runner == nil {
		return "", nil, fmt.Errorf("no command runner configured for pdf extraction")
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, nil, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return "", nil, fmt.Errorf("pdftotext: %s: %w", msg, err)
		}
		return "", nil, fmt.Errorf("pdftotext: %w", err)
	}
	text := string(out)
	// A form-feed \f is used as page separator by default
	pages := 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	return text, map[string]any{"pages": pages, "has_tables": false}, nil
}

func extractCSV(_ context.Context, path string) (string, map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return "", nil, err
	}
	if len(records) == 0 {
		return "", nil, fmt.Errorf("no columns to parse from file")
	}

	header := records[0]
	rows := records[1:]
	samples := make([]map[string]any, 0, 3)
	for i := 0; i < len(rows) && i < 3; i++ {
		samples = append(samples, rowMap(header, rows[i]))
	}
	structure := map[string]any{
		"columns":     header,
		"row_count":   len(rows),
		"sample_rows": samples,
	}
	return renderTable(records), structure, nil
}

// oleSignature starts legacy BIFF .xls workbooks, which excelize cannot read.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func extractExcel(_ context.Context, path string) (string, map[string]any, error) {
	legacy, err := isLegacyWorkbook(path)
	if err != nil {
		return "", nil, err
	}
	if legacy {
		return "", nil, common.InvalidInput("Legacy .xls workbooks are not supported; save the file as .xlsx")
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	var parts []string
	sheets := map[string]any{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		var header []string
		count := 0
		if len(rows) > 0 {
			header = rows[0]
			count = len(rows) - 1
		}
		if header == nil {
			header = []string{}
		}
		sheets[name] = map[string]any{"columns": header, "row_count": count}
		parts = append(parts, fmt.Sprintf("=== Sheet: %s ===\n%s", name, renderTable(rows)))
	}
	return strings.Join(parts, "\n\n"), map[string]any{"sheets": sheets}, nil
}

func isLegacyWorkbook(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, len(oleSignature))
	if _, err := io.ReadFull(f, head); err != nil {
		// too short to be either format; let excelize report it
		return false, nil
	}
	return bytes.Equal(head, oleSignature), nil
}

func extractJSON(_ context.Context, path string) (string, map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return "", nil, err
	}

	var structure map[string]any
	switch t := v.(type) {
	case []any:
		structure = map[string]any{"type": "array", "length": len(t)}
	case map[string]any:
		structure = map[string]any{"type": "object", "keys": objectKeys(raw, 20)}
	default:
		structure = map[string]any{"type": jsonTypeName(t)}
	}
	return buf.String(), structure, nil
}

// objectKeys returns up to limit top-level keys in document order.
func objectKeys(raw []byte, limit int) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	keys := []string{}
	if _, err := dec.Token(); err != nil {
		return keys
	}
	for dec.More() && len(keys) < limit {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		k, _ := tok.(string)
		keys = append(keys, k)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			break
		}
	}
	return keys
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "str"
	case float64:
		return "number"
	case bool:
		return "bool"
	default:
		return "null"
	}
}

func extractText(_ context.Context, path string) (string, map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	text := string(raw)
	return text, map[string]any{
		"line_count": len(strings.Split(text, "\n")),
		"char_count": len([]rune(text)),
	}, nil
}
