package interp

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if s.stdout == nil || s.stderr == nil || s.stdin == nil {
		t.Fatal("expected default stdio streams")
	}
	if s.workDir == "" {
		t.Fatal("expected a default work dir")
	}
	if s.Pipeline == nil {
		t.Fatal("expected a wired Pipeline")
	}
}

func TestEvalExitStopsTheSession(t *testing.T) {
	var out, errBuf bytes.Buffer
	s, err := New(Options{Stdout: &out, Stderr: &errBuf})
	if err != nil {
		t.Fatal(err)
	}
	cont, err := s.Eval("exit")
	if err != nil {
		t.Fatal(err)
	}
	if cont {
		t.Fatal("expected exit to report cont=false")
	}
}

func TestEvalIncludeDirPropagatesToDriver(t *testing.T) {
	var out, errBuf bytes.Buffer
	s, err := New(Options{Stdout: &out, Stderr: &errBuf})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Eval("#includedir /opt/include"); err != nil {
		t.Fatal(err)
	}
	if len(s.Pipeline.Driver.IncludeDirs) != 1 || s.Pipeline.Driver.IncludeDirs[0] != "/opt/include" {
		t.Errorf("IncludeDirs = %v", s.Pipeline.Driver.IncludeDirs)
	}
}

func TestGetPromptNonTerminalIsSilent(t *testing.T) {
	var out bytes.Buffer
	p := getPrompt(strings.NewReader(""), &out)
	p()
	if out.Len() != 0 {
		t.Errorf("expected no prompt output for a non-terminal reader, got %q", out.String())
	}
}
