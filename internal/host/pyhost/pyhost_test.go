package pyhost

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecCapturesStdout(t *testing.T) {
	s := NewSession("python3", 0)
	stdout, _, err := s.Exec(context.Background(), "print('hello')")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "hello" {
		t.Fatalf("expected stdout 'hello', got %q", stdout)
	}
}

func TestExecKeepsStderrSeparate(t *testing.T) {
	s := NewSession("python3", 0)
	stdout, stderr, err := s.Exec(context.Background(), "import sys; print('out'); print('err', file=sys.stderr)")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "out" {
		t.Fatalf("expected stdout 'out', got %q", stdout)
	}
	if strings.TrimSpace(stderr) != "err" {
		t.Fatalf("expected stderr 'err', got %q", stderr)
	}
}

func TestExecReportsNonZeroExit(t *testing.T) {
	s := NewSession("python3", 0)
	_, _, err := s.Exec(context.Background(), "raise SystemExit(3)")
	if err == nil {
		t.Fatal("expected an error for a non-zero exit")
	}
}

func TestExecTimesOutLongRunningScript(t *testing.T) {
	s := NewSession("python3", 20*time.Millisecond)
	_, _, err := s.Exec(context.Background(), "import time; time.sleep(5)")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("", 0)
	if s.Interpreter != "python3" {
		t.Fatalf("expected default interpreter python3, got %q", s.Interpreter)
	}
	if s.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", s.Timeout)
	}
}
