package simerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCategoryAndRecoverability(t *testing.T) {
	tests := []struct {
		err         *Error
		category    Category
		recoverable bool
	}{
		{NgSpiceNotFound([]string{"/usr/lib/ngspice/ngspice.wasm"}), CategorySetup, false},
		{InitializationFailed("code 1", nil), CategorySetup, false},
		{LibraryError("missing exports", nil), CategorySetup, false},
		{CommandFailed("run", "bad"), CategoryExecution, true},
		{Timeout("run", time.Second), CategoryExecution, true},
		{ConvergenceFailed("iteration limit reached"), CategoryNumerical, true},
		{InvalidComponent("R1", "missing value"), CategoryValidation, false},
		{UnsupportedComponent("S1", "switch"), CategoryValidation, false},
		{ParseError(3, "X1 a b", "unknown prefix"), CategoryParsing, false},
		{ResourceExhausted("buffers", 4), CategoryPerformance, true},
		{AnalysisFailed("no vectors"), CategoryAnalysis, false},
		{IO("read", errors.New("eof")), CategoryIO, false},
		{FFI("call", errors.New("trap")), CategoryFFI, false},
		{System("oom", nil), CategorySystem, false},
		{Generic(errors.New("boom")), CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			if got := tt.err.Category(); got != tt.category {
				t.Errorf("Category() = %s, want %s", got, tt.category)
			}
			if got := tt.err.IsRecoverable(); got != tt.recoverable {
				t.Errorf("IsRecoverable() = %v, want %v", got, tt.recoverable)
			}
			if tt.err.Error() == "" {
				t.Error("Error() is empty")
			}
		})
	}
}

func TestEveryKindHasACategory(t *testing.T) {
	for k := KindGeneric; k <= KindSystem; k++ {
		e := &Error{Kind: k}
		if strings.HasPrefix(k.String(), "kind(") {
			t.Errorf("kind %d has no name", int(k))
		}
		if k != KindGeneric && e.Category() == CategoryUnknown {
			t.Errorf("kind %s maps to unknown category", k)
		}
	}
}

func TestHelpersSeeThroughWrapping(t *testing.T) {
	base := Timeout("run", 5*time.Second)
	wrapped := fmt.Errorf("simulating: %w", base)

	if KindOf(wrapped) != KindTimeout {
		t.Errorf("KindOf = %s", KindOf(wrapped))
	}
	if CategoryOf(wrapped) != CategoryExecution {
		t.Errorf("CategoryOf = %s", CategoryOf(wrapped))
	}
	if !IsRecoverable(wrapped) {
		t.Error("wrapped timeout should be recoverable")
	}
	if !errors.Is(wrapped, &Error{Kind: KindTimeout}) {
		t.Error("errors.Is should match by kind")
	}
	if errors.Is(wrapped, &Error{Kind: KindCommandFailed}) {
		t.Error("errors.Is matched a different kind")
	}

	foreign := errors.New("plain")
	if KindOf(foreign) != KindGeneric || IsRecoverable(foreign) {
		t.Error("foreign errors must be generic and non-recoverable")
	}
}

func TestMessagesCarryContext(t *testing.T) {
	tests := []struct {
		err  *Error
		want []string
	}{
		{CommandFailed("source deck.cir", "Error on line 3"), []string{"source deck.cir", "Error on line 3"}},
		{Timeout("run", 1500*time.Millisecond), []string{"run", "1.5s"}},
		{ParseError(2, "X1 1 0 5", "unknown component prefix %q", "X"), []string{"line 2", "X1 1 0 5", `"X"`}},
		{UnsupportedComponent("SW1", "switch"), []string{"SW1", "switch"}},
		{NgSpiceNotFound([]string{"/a", "/b"}), []string{"/a", "/b"}},
	}
	for _, tt := range tests {
		msg := tt.err.Error()
		for _, w := range tt.want {
			if !strings.Contains(msg, w) {
				t.Errorf("%q does not mention %q", msg, w)
			}
		}
	}
}
