package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "config error",
			code:    "R010",
			wantMsg: "Configuration file could not be parsed",
			wantCat: CategoryConfig,
		},
		{
			name:    "inspector error",
			code:    "R030",
			wantMsg: "Inspector failed to start",
			wantCat: CategoryInspect,
		},
		{
			name:    "unknown error code",
			code:    "R999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("address in use")
	err := New("R030").Wrap(cause)

	if got := err.Error(); got != "R030: Inspector failed to start: address in use" {
		t.Errorf("Error() = %q", got)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}

	uncoded := Newf(CategoryCLI, "bad count %d", -1)
	if got := uncoded.Error(); got != "bad count -1" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "R010") != nil {
		t.Error("FromError(nil) should be nil")
	}

	base := New("R011")
	wrapped := fmt.Errorf("loading: %w", base)
	if got := FromError(wrapped, "R010"); got != base {
		t.Error("FromError should return an existing RippleError from the chain")
	}

	plain := stderrors.New("boom")
	got := FromError(plain, "R021")
	if got.Code != "R021" || !stderrors.Is(got, plain) {
		t.Errorf("unexpected wrap %+v", got)
	}
}

func TestWithLocationReadsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ripple.toml")
	content := "[serve]\naddr = \":8080\"\n\n[log]\nlevel = \"loud\"\nformat = \"text\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	err := New("R011").WithLocation(path, 5, 9).WithSuggestion("use info")
	if len(err.Context) != 4 {
		t.Fatalf("expected lines 3-6 as context, got %q", err.Context)
	}
	if err.Context[2] != `level = "loud"` {
		t.Errorf("unexpected context line %q", err.Context[2])
	}

	DisableColors()
	defer EnableColors()

	out := err.Format()
	for _, want := range []string{
		"ERROR R011: Invalid configuration value",
		path + ":5:9",
		"→    5 │ level = \"loud\"",
		"        │         ^",
		"Hint: use info",
		"Learn more: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestWithLocationMissingFile(t *testing.T) {
	err := New("R011").WithLocation("does-not-exist.toml", 3, 0)
	if err.Context != nil {
		t.Errorf("expected no context, got %q", err.Context)
	}
	if got := err.FormatCompact(); got != "does-not-exist.toml:3: R011: Invalid configuration value" {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("R012").WithLocation("x.json", 1, 0).Wrap(stderrors.New("no such file"))

	var got map[string]any
	if e := json.Unmarshal([]byte(err.FormatJSON()), &got); e != nil {
		t.Fatalf("invalid JSON: %v", e)
	}
	if got["code"] != "R012" || got["category"] != "config" || got["cause"] != "no such file" {
		t.Errorf("unexpected JSON %v", got)
	}
	loc, _ := got["location"].(map[string]any)
	if loc["file"] != "x.json" || loc["line"] != 1.0 {
		t.Errorf("unexpected location %v", loc)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q exceeds width", l)
		}
	}
	if strings.Join(lines, " ") != "one two three four five six" {
		t.Errorf("wrapText lost words: %q", lines)
	}
	if wrapText("", 10) != nil {
		t.Error("empty text should give no lines")
	}
}

func TestRegistry(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("registry is empty")
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Errorf("codes not sorted: %v", codes)
		}
	}
	for _, code := range codes {
		tmpl, _ := GetTemplate(code)
		if tmpl.Message == "" || tmpl.Category == "" || tmpl.DocURL == "" {
			t.Errorf("template %s is incomplete", code)
		}
	}

	Register("R900", ErrorTemplate{Category: CategoryRuntime, Message: "custom"})
	if New("R900").Message != "custom" {
		t.Error("registered template not used")
	}
}

func TestPrintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var b strings.Builder
	PrintError(&b, fmt.Errorf("ctx: %w", New("R020")))
	if !strings.Contains(b.String(), "ERROR R020: Invalid flag value") {
		t.Errorf("unexpected output %q", b.String())
	}

	b.Reset()
	PrintError(&b, stderrors.New("plain"))
	if !strings.Contains(b.String(), "ERROR: plain") {
		t.Errorf("unexpected output %q", b.String())
	}
}
