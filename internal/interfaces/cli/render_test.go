package cli

import (
	"strings"
	"testing"
)

func TestNewRenderer_DefaultsWidthWhenNonPositive(t *testing.T) {
	r := NewRenderer(0)
	if r.width != 80 {
		t.Fatalf("expected default width 80, got %d", r.width)
	}
}

func TestNewRenderer_KeepsExplicitWidth(t *testing.T) {
	r := NewRenderer(120)
	if r.width != 120 {
		t.Fatalf("expected width 120, got %d", r.width)
	}
}

func TestRenderMarkdown_FallsBackToRawTextWithoutRenderer(t *testing.T) {
	r := &Renderer{glamour: nil, width: 80}
	md := "# heading\nsome *text*"
	if got := r.RenderMarkdown(md); got != md {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}

func TestRenderHealth_IncludesKnownFieldsOnly(t *testing.T) {
	r := NewRenderer(80)
	out := r.RenderHealth(map[string]interface{}{
		"deployment_mode":   "normal",
		"browser_connected": true,
		"page_ready":        false,
		"worker_running":    true,
		"queue_length":      3,
		"unrelated_field":   "ignored",
	})
	if !strings.Contains(out, "deployment_mode") {
		t.Fatal("expected deployment_mode in rendered output")
	}
	if strings.Contains(out, "unrelated_field") {
		t.Fatal("expected unrecognized keys to be omitted")
	}
	if !strings.Contains(out, "yes") || !strings.Contains(out, "no") {
		t.Fatalf("expected both yes/no styled booleans, got %q", out)
	}
}

func TestRenderHealth_SkipsMissingKeys(t *testing.T) {
	r := NewRenderer(80)
	out := r.RenderHealth(map[string]interface{}{"queue_length": 0})
	if !strings.Contains(out, "queue_length") {
		t.Fatal("expected queue_length to be rendered")
	}
	if strings.Contains(out, "deployment_mode") {
		t.Fatal("expected deployment_mode to be omitted when absent")
	}
}

func TestStyledValue_BooleanFields(t *testing.T) {
	if got := styledValue("browser_connected", true); !strings.Contains(got, "yes") {
		t.Fatalf("expected styled yes, got %q", got)
	}
	if got := styledValue("page_ready", false); !strings.Contains(got, "no") {
		t.Fatalf("expected styled no, got %q", got)
	}
}

func TestStyledValue_DeploymentModeHighlightsNonNormal(t *testing.T) {
	normal := styledValue("deployment_mode", "normal")
	if !strings.Contains(normal, "normal") {
		t.Fatalf("expected mode text preserved, got %q", normal)
	}
	abnormal := styledValue("deployment_mode", "emergency")
	if !strings.Contains(abnormal, "emergency") {
		t.Fatalf("expected mode text preserved, got %q", abnormal)
	}
}

func TestStyledValue_FallsBackToFmtForUnknownKeys(t *testing.T) {
	if got := styledValue("queue_length", 5); got != "5" {
		t.Fatalf("expected plain formatting, got %q", got)
	}
}

func TestRenderQueue_FormatsLength(t *testing.T) {
	r := NewRenderer(80)
	out := r.RenderQueue(map[string]interface{}{"queue_length": 7})
	if !strings.Contains(out, "queue_length:") || !strings.Contains(out, "7") {
		t.Fatalf("expected queue length in output, got %q", out)
	}
}
