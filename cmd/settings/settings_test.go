package settings

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dPrefs/lib/common"
	"gopkg.in/yaml.v3"
)

func TestTypeNameAndFormat(t *testing.T) {
	tests := []struct {
		value    any
		typeName string
		format   string
	}{
		{true, "bool", "true"},
		{"hi", "string", "hi"},
		{int32(-3), "int", "-3"},
		{float32(1.5), "float", "1.5"},
		{int64(1 << 40), "long", "1099511627776"},
		{[]string{"a", "b"}, "stringset", "a,b"},
	}
	for _, tt := range tests {
		if got := typeName(tt.value); got != tt.typeName {
			t.Errorf("typeName(%v): expected %s, got %s", tt.value, tt.typeName, got)
		}
		if got := formatValue(tt.value); got != tt.format {
			t.Errorf("formatValue(%v): expected %s, got %s", tt.value, tt.format, got)
		}
	}
}

func TestExport(t *testing.T) {
	values := map[string]any{
		"dark_mode": true,
		"font_size": int32(14),
		"tags":      []string{"a", "b"},
	}

	var buf bytes.Buffer
	if err := export(&buf, "json", values); err != nil {
		t.Fatalf("json: %v", err)
	}
	var fromJSON map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fromJSON); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if fromJSON["dark_mode"] != true || fromJSON["font_size"] != float64(14) {
		t.Errorf("unexpected json %s", buf.String())
	}

	buf.Reset()
	if err := export(&buf, "yaml", values); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var fromYAML map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if fromYAML["font_size"] != 14 || !strings.Contains(buf.String(), "- a") {
		t.Errorf("unexpected yaml %s", buf.String())
	}

	if err := export(&buf, "xml", values); err == nil {
		t.Errorf("expected an error for an unknown format")
	}
}

func TestWriteResultsToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf.csv")
	results := map[string]testing.BenchmarkResult{
		"commit": {N: 10, T: 10 * time.Millisecond},
		"get":    {N: 1000, T: time.Millisecond},
	}
	conf := common.DefaultConfig()
	if err := writeResultsToCSV(path, results, &conf, 2, 50); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "commit" || rows[1][1] != "1000000" {
		t.Errorf("unexpected commit row %v", rows[1])
	}
	if rows[2][0] != "get" || rows[2][1] != "1000" || rows[2][7] != "2" || rows[2][8] != "50" {
		t.Errorf("unexpected get row %v", rows[2])
	}
}
