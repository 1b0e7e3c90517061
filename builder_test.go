package wasicore

import (
	"strings"
	"testing"
)

func TestBuilderRejectsDuplicateEnvKey(t *testing.T) {
	_, err := NewBuilder(nil).Env("HOME", "/a").Env("HOME", "/b").Build()
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("Build with duplicate env key = %v, want duplicate-key error", err)
	}
}

func TestBuilderRejectsNulBytes(t *testing.T) {
	if _, err := NewBuilder(nil).Argv("a\x00b").Build(); err == nil {
		t.Fatal("Build with NUL in argv should fail")
	}
	if _, err := NewBuilder(nil).Env("K", "v\x00").Build(); err == nil {
		t.Fatal("Build with NUL in env value should fail")
	}
}

func TestBuilderKeepsArgvAndEnvOrder(t *testing.T) {
	ctx, err := NewBuilder(nil).Argv("prog", "-v").Env("A", "1").Env("B", "2").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	argv := ctx.Argv()
	if len(argv) != 2 || argv[0] != "prog" || argv[1] != "-v" {
		t.Fatalf("argv = %v", argv)
	}
	envp := ctx.Envp()
	if len(envp) != 2 || envp[0] != "A=1" || envp[1] != "B=2" {
		t.Fatalf("envp = %v", envp)
	}
}
