package command

import "testing"

func TestParseNonCommandReturnsNil(t *testing.T) {
	if p := Parse("hello there"); p != nil {
		t.Errorf("Parse of plain text should be nil, got %+v", p)
	}
}

func TestParseLowercasesName(t *testing.T) {
	p := Parse("/TOPIC #general new topic here")
	if p == nil {
		t.Fatal("expected non-nil Parsed")
	}
	if p.Name != "topic" {
		t.Errorf("Name = %q, want topic", p.Name)
	}
	if len(p.Args) != 4 || p.Args[0] != "#general" {
		t.Errorf("Args = %v", p.Args)
	}
	if p.RawArgs != "#general new topic here" {
		t.Errorf("RawArgs = %q", p.RawArgs)
	}
}

func TestParsePreservesRawArgsSpacing(t *testing.T) {
	p := Parse("/msg nova   hello   world")
	if p == nil {
		t.Fatal("expected non-nil Parsed")
	}
	if p.RawArgs != "nova   hello   world" {
		t.Errorf("RawArgs = %q, want original spacing preserved", p.RawArgs)
	}
}

func TestParseBareSlash(t *testing.T) {
	p := Parse("/")
	if p == nil {
		t.Fatal("expected non-nil Parsed for bare slash")
	}
	if p.Name != "" {
		t.Errorf("Name = %q, want empty", p.Name)
	}
}
