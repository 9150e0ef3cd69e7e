package models

import "testing"

func TestNewMessageID_Unique(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if len(a) != 26 {
		t.Fatalf("expected a 26-character ULID, got %q (%d chars)", a, len(a))
	}
}

func TestTextPart(t *testing.T) {
	p := TextPart("hello")
	if p.Type != ContentText {
		t.Fatalf("Type = %q, want %q", p.Type, ContentText)
	}
	if p.Text != "hello" {
		t.Fatalf("Text = %q, want %q", p.Text, "hello")
	}
}

func TestToolResultPart(t *testing.T) {
	inner := []ContentPart{TextPart("ok")}
	p := ToolResultPart("tu_1", inner, false)
	if p.Type != ContentToolResult {
		t.Fatalf("Type = %q, want %q", p.Type, ContentToolResult)
	}
	if p.ToolResultForID != "tu_1" {
		t.Fatalf("ToolResultForID = %q, want %q", p.ToolResultForID, "tu_1")
	}
	if p.IsError {
		t.Fatal("IsError = true, want false")
	}
}

func TestIsTextOnly(t *testing.T) {
	tests := []struct {
		name  string
		parts []ContentPart
		want  bool
	}{
		{"empty", nil, true},
		{"all text", []ContentPart{TextPart("a"), TextPart("b")}, true},
		{"mixed", []ContentPart{TextPart("a"), ToolUsePart("id", "name", nil)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTextOnly(tt.parts); got != tt.want {
				t.Errorf("IsTextOnly() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConcatText(t *testing.T) {
	parts := []ContentPart{
		TextPart("hello "),
		ToolUsePart("tu_1", "search", nil),
		TextPart("world"),
	}
	if got, want := ConcatText(parts), "hello world"; got != want {
		t.Fatalf("ConcatText() = %q, want %q", got, want)
	}
}
