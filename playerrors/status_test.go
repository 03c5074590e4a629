package playerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusOfUnwrapsChain(t *testing.T) {
	base := New(StatusWouldBlock, "scanSources", nil)
	wrapped := fmt.Errorf("scan failed: %w", base)

	if got := StatusOf(wrapped); got != StatusWouldBlock {
		t.Fatalf("StatusOf() = %v, want %v", got, StatusWouldBlock)
	}
	if !Is(wrapped, StatusWouldBlock) {
		t.Fatalf("Is(wrapped, StatusWouldBlock) = false, want true")
	}
}

func TestStatusOfNonPlayerError(t *testing.T) {
	if got := StatusOf(errors.New("boom")); got != StatusUnknownError {
		t.Fatalf("StatusOf() = %v, want %v", got, StatusUnknownError)
	}
}

func TestErrorIsMatchesStatusOnly(t *testing.T) {
	a := New(StatusInvalidOperation, "driver.start", errors.New("wrong state"))
	b := Sentinel(StatusInvalidOperation, "")

	if !errors.Is(a, b) {
		t.Fatalf("errors.Is(a, b) = false, want true")
	}

	c := Sentinel(StatusBadValue, "")
	if errors.Is(a, c) {
		t.Fatalf("errors.Is(a, c) = true, want false")
	}
}
