package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantHeaders []string
		wantRecords [][]string
	}{
		{
			name:        "simple",
			input:       "a,b\n1,2\n3,4",
			wantHeaders: []string{"a", "b"},
			wantRecords: [][]string{{"1", "2"}, {"3", "4"}},
		},
		{
			name:        "markdown fence",
			input:       "```csv\nSample,Lat\nS1,45.2\n```\n",
			wantHeaders: []string{"Sample", "Lat"},
			wantRecords: [][]string{{"S1", "45.2"}},
		},
		{
			name:        "quoted commas and quotes",
			input:       "name,note\n\"Smith, J.\",\"said \"\"hi\"\"\"",
			wantHeaders: []string{"name", "note"},
			wantRecords: [][]string{{"Smith, J.", `said "hi"`}},
		},
		{
			name:        "quoted newline",
			input:       "a,b\n\"line1\nline2\",x",
			wantHeaders: []string{"a", "b"},
			wantRecords: [][]string{{"line1\nline2", "x"}},
		},
		{
			name:        "blank lines and crlf",
			input:       "a,b\r\n\r\n1,2\r\n  \r\n3,4\r\n",
			wantHeaders: []string{"a", "b"},
			wantRecords: [][]string{{"1", "2"}, {"3", "4"}},
		},
		{
			name:        "ragged rows are padded and truncated",
			input:       "a,b,c\n1\n1,2,3,4",
			wantHeaders: []string{"a", "b", "c"},
			wantRecords: [][]string{{"1", "", ""}, {"1", "2", "3"}},
		},
		{
			name:        "unquoted cells are trimmed",
			input:       " a , b \n 1 ,2 ",
			wantHeaders: []string{"a", "b"},
			wantRecords: [][]string{{"1", "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCSV(tt.input)
			if err != nil {
				t.Fatalf("ParseCSV() error = %v", err)
			}
			if !reflect.DeepEqual(got.Headers, tt.wantHeaders) {
				t.Errorf("Headers = %q, want %q", got.Headers, tt.wantHeaders)
			}
			if !reflect.DeepEqual(got.Records, tt.wantRecords) {
				t.Errorf("Records = %q, want %q", got.Records, tt.wantRecords)
			}
		})
	}
}

func TestParseCSV_Empty(t *testing.T) {
	for _, input := range []string{"", "\n\n", "```csv\n```"} {
		if _, err := ParseCSV(input); !errors.Is(err, ErrEmptyCSV) {
			t.Errorf("ParseCSV(%q) error = %v, want ErrEmptyCSV", input, err)
		}
	}
}

func TestSerializeCSV_RoundTrip(t *testing.T) {
	tables := []*CSVTable{
		{
			Headers: []string{"Sample", "Note", "Value"},
			Records: [][]string{
				{"S1", "contains, comma", "1.5"},
				{"S2", `has "quotes"`, ""},
				{"S3", "multi\nline", "-2"},
				{"S4", "  padded  ", "x\r\ny"},
			},
		},
		{
			Headers: []string{"only"},
			Records: [][]string{{""}, {"a"}, {""}},
		},
		{
			Headers: []string{"a", "b"},
			Records: [][]string{{"", ""}, {"```", "``` fence"}},
		},
	}

	for i, want := range tables {
		text := SerializeCSV(want)
		got, err := ParseCSV(text)
		if err != nil {
			t.Fatalf("table %d: ParseCSV(SerializeCSV()) error = %v", i, err)
		}
		if !reflect.DeepEqual(got.Headers, want.Headers) || !reflect.DeepEqual(got.Records, want.Records) {
			t.Errorf("table %d round trip:\n got  %q %q\n want %q %q\ntext: %q", i, got.Headers, got.Records, want.Headers, want.Records, text)
		}
	}
}

func TestComputeStats(t *testing.T) {
	table, _ := ParseCSV("a,b,c,d\n1,,3,\n5,,7,8")
	stats := ComputeStats(table)

	if stats.TotalRows != 2 || stats.TotalColumns != 4 {
		t.Errorf("rows, columns = %d, %d, want 2, 4", stats.TotalRows, stats.TotalColumns)
	}
	if stats.Completeness != 62.5 {
		t.Errorf("Completeness = %v, want 62.5", stats.Completeness)
	}
	if stats.Fields[1].Filled != 0 || stats.Fields[3].FillRate != 50 {
		t.Errorf("Fields = %+v", stats.Fields)
	}

	if got := ComputeStats(nil); got.TotalRows != 0 {
		t.Errorf("ComputeStats(nil) = %+v, want zero", got)
	}
}

func TestParsedRow(t *testing.T) {
	table, _ := ParseCSV("b,a\n2,1")
	row := table.Rows()[0]

	if row.Get("a") != "1" || row.Get("missing") != "" {
		t.Errorf("Get() = %q, %q", row.Get("a"), row.Get("missing"))
	}
	data, err := row.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(data) != `{"b":"2","a":"1"}` {
		t.Errorf("MarshalJSON() = %s, want header order", data)
	}
}

func TestPreview(t *testing.T) {
	table, _ := ParseCSV("a\n1\n2\n3")
	if n := len(table.Preview(2).Records); n != 2 {
		t.Errorf("Preview(2) = %d records", n)
	}
	if n := len(table.Preview(10).Records); n != 3 {
		t.Errorf("Preview(10) = %d records", n)
	}
	if !strings.HasPrefix(SerializeCSV(table.Preview(1)), "a\n1") {
		t.Error("Preview(1) serialization")
	}
}
