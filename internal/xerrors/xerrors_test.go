package xerrors

import (
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
)

func frameFuncs(pcs []uintptr) []string {
	var out []string
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		out = append(out, fr.Function)
		if !more {
			break
		}
	}
	return out
}

func TestNew_CapturesCallerStack(t *testing.T) {
	err := New("boom")
	if err.Error() != "boom" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("New should attach a stack")
	}
	funcs := frameFuncs(hs.StackPCs())
	if len(funcs) == 0 || !strings.Contains(funcs[0], "TestNew_CapturesCallerStack") {
		t.Fatalf("first frame = %v, want the test function", funcs)
	}
}

func TestNewf_PreservesWrappedSentinel(t *testing.T) {
	err := Newf("read config: %w", io.EOF)
	if !errors.Is(err, io.EOF) {
		t.Fatal("errors.Is should see through Newf")
	}
}

func TestWrap_NilPassthrough(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
}

func TestWrap_MessageAndPC(t *testing.T) {
	err := Wrapf(io.ErrUnexpectedEOF, "relay %s", "formspree")
	if got, want := err.Error(), "relay formspree: unexpected EOF"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("errors.Is should see through Wrapf")
	}

	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) || hp.PC() == 0 {
		t.Fatal("Wrapf should record a caller PC")
	}
	fn := runtime.FuncForPC(hp.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap_MessageAndPC") {
		t.Fatalf("PC resolves to %v, want the test function", fn)
	}
}

func TestEnsureTrace_DoesNotDoubleWrap(t *testing.T) {
	first := New("once")
	if EnsureTrace(first) != first {
		t.Fatal("EnsureTrace should return an already stacked error unchanged")
	}

	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	if traced == plain {
		t.Fatal("EnsureTrace should wrap an error without a stack")
	}
	if !errors.Is(traced, plain) {
		t.Fatal("traced error should still match the original")
	}
}
