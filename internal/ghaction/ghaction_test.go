package ghaction

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestErrors(t *testing.T) {
	var buf bytes.Buffer
	sink := New(&buf, "")

	err := sink.Errors([]string{
		"Error: shop version doesn't match the expected result",
		"Error: Received \"100% broken\nsecond line\"",
	})
	if err != nil {
		t.Fatalf("Errors: %v", err)
	}

	want := "::error::Error: shop version doesn't match the expected result\n" +
		"::error::Error: Received \"100%25 broken%0Asecond line\"\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestSetOutputsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	if err := os.WriteFile(path, []byte("earlier=1\n"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	sink := New(&bytes.Buffer{}, path)
	err := sink.SetOutputs(map[string]string{
		"stage":     "done",
		"result":    "SUCCEEDED",
		"restarted": "false",
		"messages":  "line one\nline two",
	})
	if err != nil {
		t.Fatalf("SetOutputs: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "earlier=1\n" +
		"messages<<" + outputDelimiter + "\nline one\nline two\n" + outputDelimiter + "\n" +
		"restarted=false\n" +
		"result=SUCCEEDED\n" +
		"stage=done\n"
	if string(data) != want {
		t.Fatalf("unexpected output file:\n%s\nwant\n%s", data, want)
	}
}

func TestSetOutputsDisabled(t *testing.T) {
	sink := New(&bytes.Buffer{}, "")
	if err := sink.SetOutputs(map[string]string{"result": "FAILED"}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}
