package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var shipped = filepath.Join("..", "..", "prompts")

func TestValidate_ShippedPrompts(t *testing.T) {
	out, err := run(t, "validate", "--dir", shipped)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok: 3 templates, 1 experiments") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestValidate_Failures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("classification/v1.yaml", "id: classification\nversion: \"1.0.0\"\nsystem_prompt: x\nuser_prompt_template: \"{{ message }}\"\n")
	write("classification/broken.yaml", "id: [unterminated\n")
	write("experiments.yaml", "experiments:\n  - id: exp\n    active: true\n    variants:\n      - name: a\n        version: \"9.9.9\"\n        traffic: 1\n")

	out, err := run(t, "validate", "--dir", dir)
	if err == nil {
		t.Fatalf("expected validation failure, got:\n%s", out)
	}
	if !strings.Contains(out, "broken.yaml") || !strings.Contains(out, "experiment exp variant a") {
		t.Errorf("expected both problems reported, got:\n%s", out)
	}
}

func TestList(t *testing.T) {
	out, err := run(t, "list", "--dir", shipped)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"classification", "1.1.0", "classification_audio", "classification-calibration"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in listing:\n%s", want, out)
		}
	}
}

func TestRender(t *testing.T) {
	out, err := run(t, "render", "--dir", shipped, "--version", "1.1.0",
		"--var", "message=Where is order ORD-1234?", "--var", "channel=mail")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out, "# classification:1.1.0\n") || !strings.Contains(out, "CHANNEL: mail") || !strings.Contains(out, "Where is order ORD-1234?") {
		t.Errorf("unexpected render:\n%s", out)
	}

	if _, err := run(t, "render", "--dir", shipped, "--var", "channel=chat"); err == nil {
		t.Error("expected missing parameter error")
	}
	if _, err := run(t, "render", "--dir", shipped, "--var", "novalue"); err == nil {
		t.Error("expected bad --var error")
	}
}
