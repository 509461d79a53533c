package cli

import (
	"bytes"
	"errors"
	"testing"

	"remuxkit/internal/av"
	"remuxkit/internal/logging"
)

func newTestTool() (*Tool, *bytes.Buffer) {
	t := New("tool", "input")
	var buf bytes.Buffer
	t.stderr = &buf
	t.Flags.SetOutput(&buf)
	return t, &buf
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"policy", av.Policy("open output", errors.New("exists")), ExitPolicy},
		{"framework", av.FrameworkError("encode", -22, errors.New("bad")), ExitFailed},
		{"plain", errors.New("boom"), ExitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseLevels(t *testing.T) {
	defer logging.SetLevel(logging.GetLevel())

	tests := []struct {
		args   []string
		level  logging.LogLevel
		ffmpeg string
	}{
		{nil, logging.LevelWarn, "error"},
		{[]string{"-v"}, logging.LevelInfo, "info"},
		{[]string{"-d"}, logging.LevelDebug, "debug"},
		{[]string{"-t", "-v"}, logging.LevelTrace, "trace"},
	}
	for _, tt := range tests {
		tool, _ := newTestTool()
		t.Setenv("FFMPEG_LOG_LEVEL", "error")
		if code, ok := tool.Parse(tt.args); !ok || code != ExitOK {
			t.Fatalf("Parse(%v) = %d, %v", tt.args, code, ok)
		}
		if got := logging.GetLevel(); got != tt.level {
			t.Errorf("Parse(%v) level = %v, want %v", tt.args, got, tt.level)
		}
		if got := tool.ffmpegLogLevel(); got != tt.ffmpeg {
			t.Errorf("Parse(%v) ffmpeg level = %q, want %q", tt.args, got, tt.ffmpeg)
		}
	}
}

func TestParseBadFlag(t *testing.T) {
	tool, buf := newTestTool()
	code, ok := tool.Parse([]string{"-nope"})
	if ok || code != ExitPolicy {
		t.Errorf("Parse(-nope) = %d, %v; want %d, false", code, ok, ExitPolicy)
	}
	if !bytes.Contains(buf.Bytes(), []byte("Usage: tool")) {
		t.Errorf("usage not printed: %q", buf.String())
	}
}

func TestParseHelp(t *testing.T) {
	tool, _ := newTestTool()
	if code, ok := tool.Parse([]string{"-h"}); ok || code != ExitOK {
		t.Errorf("Parse(-h) = %d, %v; want %d, false", code, ok, ExitOK)
	}
}

func TestUsagef(t *testing.T) {
	tool, buf := newTestTool()
	if code := tool.Usagef("missing %s", "input"); code != ExitPolicy {
		t.Errorf("Usagef() = %d, want %d", code, ExitPolicy)
	}
	if !bytes.Contains(buf.Bytes(), []byte("tool: missing input")) {
		t.Errorf("message not printed: %q", buf.String())
	}
}

func TestReport(t *testing.T) {
	tool, buf := newTestTool()
	if code := tool.report(av.Policy("open output", errors.New("exists"))); code != ExitPolicy {
		t.Errorf("report() = %d, want %d", code, ExitPolicy)
	}
	if buf.Len() == 0 {
		t.Error("report() printed nothing")
	}
}
