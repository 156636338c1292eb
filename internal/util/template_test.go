package util

import (
	"strings"
	"testing"
)

func TestRenderTemplate_FastPath(t *testing.T) {
	out, err := RenderTemplate("no markers here", nil)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if out != "no markers here" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRenderTemplate_Data(t *testing.T) {
	out, err := RenderTemplate("Question: {{.Query}}", map[string]any{"Query": "why"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if out != "Question: why" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRenderTemplate_Helpers(t *testing.T) {
	out, err := RenderTemplate("{{numbered .Items}}{{join \", \" .Items}}", map[string]any{
		"Items": []string{"first", "second"},
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(out, "1. first\n2. second\n") {
		t.Fatalf("numbered helper broken: %q", out)
	}
	if !strings.Contains(out, "first, second") {
		t.Fatalf("join helper broken: %q", out)
	}
}

func TestRenderTemplate_BadTemplate(t *testing.T) {
	if _, err := RenderTemplate("{{.Query", nil); err == nil {
		t.Fatal("expected parse error")
	}
}
