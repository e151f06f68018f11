package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSortKeysCanonical(t *testing.T) {
	keys := []string{"zeta", "error", "deleted", "module", "alpha", "pass_id"}
	sortKeysCanonical(keys)
	want := []string{"module", "pass_id", "deleted", "alpha", "zeta", "error"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", keys, want)
	}
}

func TestModuleFromFile(t *testing.T) {
	cases := map[string]string{
		"/src/github.com/maniack/logpurge/internal/purge/scheduler.go": "internal/purge",
		"/src/github.com/maniack/logpurge/cmd/logpurge/main.go":        "cmd/logpurge",
		"/src/github.com/other/repo/x.go":                              "",
	}
	for in, want := range cases {
		if got := moduleFromFile(in); got != want {
			t.Errorf("moduleFromFile(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContextHookAddsPassID(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(&buf, true, false)
	ctx := context.WithValue(context.Background(), ContextPassID, "p-1")
	L().WithContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "pass_id=p-1") {
		t.Fatalf("expected pass_id in output, got: %s", buf.String())
	}
}

func TestCronLogger(t *testing.T) {
	l := logrus.New()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)

	cl := NewCronLogger(l)
	cl.Info("wake", "now", "x")
	if !strings.Contains(buf.String(), "level=debug") || !strings.Contains(buf.String(), "now=x") {
		t.Fatalf("unexpected info output: %s", buf.String())
	}
	buf.Reset()
	cl.Error(errors.New("boom"), "panic", "odd")
	if !strings.Contains(buf.String(), "level=error") || !strings.Contains(buf.String(), "extra=odd") {
		t.Fatalf("unexpected error output: %s", buf.String())
	}
}
