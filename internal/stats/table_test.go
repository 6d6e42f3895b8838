package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Hour", "Contam %", "Reactor"}
	rows := [][]string{
		{"1", "95.20", "OK"},
		{"12", "48.75", "ANOMALY"},
	}
	rightAlign := map[int]bool{0: true, 1: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Hour Contam % Reactor" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "   1    95.20 OK     " {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "  12    48.75 ANOMALY" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"Temp (°C)", "x"}, [][]string{{"27.10", "ü"}}, nil)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if displayWidth(lines[0]) != displayWidth(lines[1]) {
		t.Fatalf("expected equal display widths: %q vs %q", lines[0], lines[1])
	}
}
