package ui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

func init() {
	color.NoColor = true
}

type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

func TestConfirmAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"\n", false},
		{"n\n", false},
		{"sure\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := &Prompter{In: strings.NewReader(tt.input), Out: &out, Interactive: true}
		got, err := p.Confirm(context.Background(), "Delete everything?")
		if err != nil {
			t.Fatalf("input %q: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "[y/N]") {
			t.Fatalf("prompt = %q", out.String())
		}
	}
}

func TestConfirmWithoutTerminalCancelsWithoutReading(t *testing.T) {
	in := &countingReader{r: strings.NewReader("y\n")}
	p := &Prompter{In: in, Out: io.Discard}
	ok, err := p.Confirm(context.Background(), "Delete?")
	if ok || !deployerr.Is(err, deployerr.UserCancelled) {
		t.Fatalf("ok=%v err=%v, want UserCancelled", ok, err)
	}
	if deployerr.HintOf(err) == "" {
		t.Fatalf("missing --yes hint")
	}
	if in.reads != 0 {
		t.Fatalf("stdin read %d times", in.reads)
	}
}

func TestConfirmHonorsCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Prompter{In: pr, Out: io.Discard, Interactive: true}
	if _, err := p.Confirm(ctx, "Delete?"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestAskUsesDefaultAndRepeatsOnInvalidAnswers(t *testing.T) {
	var out bytes.Buffer
	p := &Prompter{In: strings.NewReader("70000\n8080\n\n"), Out: &out, Interactive: true}
	validate := func(s string) error {
		_, err := request.ParsePort(s)
		return err
	}
	got, err := p.Ask(context.Background(), "Port", "80", validate)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != "8080" {
		t.Fatalf("port = %q, want 8080", got)
	}
	if strings.Count(out.String(), "Port [80]:") != 2 {
		t.Fatalf("prompt output = %q", out.String())
	}
	got, err = p.Ask(context.Background(), "Domain", "localhost", nil)
	if err != nil || got != "localhost" {
		t.Fatalf("domain = %q, %v", got, err)
	}
}

func TestAskStopsWhenInputEndsOnInvalidDefault(t *testing.T) {
	p := &Prompter{In: strings.NewReader(""), Out: io.Discard, Interactive: true}
	_, err := p.Ask(context.Background(), "Domain", "bad domain!", request.ValidateDomain)
	if !deployerr.Is(err, deployerr.InvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}

	p = &Prompter{In: strings.NewReader("bad domain!\ncosy.example.org"), Out: io.Discard, Interactive: true}
	got, err := p.Ask(context.Background(), "Domain", "localhost", request.ValidateDomain)
	if err != nil || got != "cosy.example.org" {
		t.Fatalf("domain = %q, %v", got, err)
	}
}

func TestAskNonInteractiveReturnsDefault(t *testing.T) {
	in := &countingReader{r: strings.NewReader("ignored\n")}
	p := &Prompter{In: in, Out: io.Discard}
	got, err := p.Ask(context.Background(), "Username", "admin", nil)
	if err != nil || got != "admin" || in.reads != 0 {
		t.Fatalf("got %q err %v reads %d", got, err, in.reads)
	}
}

func TestStepLabel(t *testing.T) {
	tests := map[string]string{
		"check_port":                          "Check Port",
		"await_ready:Deployment/cosy-backend": "Await Ready (Deployment/cosy-backend)",
		"":                                    "Step",
	}
	for in, want := range tests {
		if got := StepLabel(in); got != want {
			t.Fatalf("StepLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStepConsolePlainOutput(t *testing.T) {
	var out bytes.Buffer
	c := NewStepConsole(&out)
	c.StepStarted("check_port")
	c.StepCompleted("check_port", "succeeded", "")
	c.StepStarted("check_metrics_store")
	c.StepCompleted("check_metrics_store", "warning", "influxdb not ready\nmore detail")
	got := out.String()
	if !strings.Contains(got, "✔ Check Port\n") {
		t.Fatalf("output = %q", got)
	}
	if !strings.Contains(got, "! Check Metrics Store - influxdb not ready\n") || strings.Contains(got, "more detail") {
		t.Fatalf("output = %q", got)
	}
}

var ansiSequence = regexp.MustCompile("\x1b\\[[0-9;]*m")

func TestRenderStepLineFitsWidthAndKeepsColorBalanced(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = true })

	tests := []struct {
		name    string
		status  string
		message string
		width   int
	}{
		{"ascii warning", "warning", strings.Repeat("container busy ", 8), 40},
		{"wide runes", "failed", strings.Repeat("容器正忙", 10), 40},
		{"narrow terminal", "warning", "compose down failed", 12},
		{"fits", "warning", "short", 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := renderStepLine("compose_down", tt.status, tt.message, tt.width)
			if opens, resets := strings.Count(line, "\x1b[3"), strings.Count(line, "\x1b[0m"); opens != resets {
				t.Fatalf("unbalanced color codes in %q", line)
			}
			plain := ansiSequence.ReplaceAllString(line, "")
			if w := runewidth.StringWidth(plain); w > tt.width {
				t.Fatalf("width %d exceeds %d: %q", w, tt.width, plain)
			}
		})
	}

	line := ansiSequence.ReplaceAllString(renderStepLine("compose_down", "warning", strings.Repeat("x", 100), 40), "")
	if !strings.HasSuffix(line, "…") || !strings.HasPrefix(line, "  ! Compose Down - x") {
		t.Fatalf("unexpected truncation %q", line)
	}
	if got := renderStepLine("compose_down", "warning", strings.Repeat("x", 100), 0); !strings.Contains(got, strings.Repeat("x", 100)) {
		t.Fatalf("unlimited width must not truncate")
	}
}

func TestPrintInstallSummary(t *testing.T) {
	var out bytes.Buffer
	PrintInstallSummary(&out, backend.Summary{
		Backend: request.Compose,
		Handle:  "/srv/cosy",
		URL:     "http://example.com:8080",
		Files:   []string{"/srv/cosy/credentials.yaml"},
	}, steps.Report{Warnings: []steps.Warning{{Step: "check_metrics_store", Err: errors.New("slow")}}})
	got := out.String()
	for _, want := range []string{"compose backend", "http://example.com:8080", "/srv/cosy/credentials.yaml", "1 warning(s):", "check_metrics_store: slow"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary lacks %q:\n%s", want, got)
		}
	}
}

func TestPrintTeardownSummary(t *testing.T) {
	var out bytes.Buffer
	PrintTeardownSummary(&out, "cosy", steps.Report{}, []string{"Namespace cosy deletion requested."})
	if !strings.Contains(out.String(), "Removed cosy\n") || !strings.Contains(out.String(), "deletion requested") {
		t.Fatalf("summary = %q", out.String())
	}
}
