package logx

import (
	"errors"
	"testing"
)

func TestDebugDomainFiltering(t *testing.T) {
	SetDebug(true)
	defer SetDebug(false)
	defer SetDebugDomains(nil)

	SetDebugDomains([]string{"fsm", "workflow"})

	if !IsDebugEnabled("fsm") {
		t.Error("expected fsm domain to be enabled")
	}
	if !IsDebugEnabled("workflow") {
		t.Error("expected workflow domain to be enabled")
	}
	if IsDebugEnabled("resilience") {
		t.Error("expected resilience domain to be disabled")
	}

	// Empty domain list enables everything.
	SetDebugDomains(nil)
	if !IsDebugEnabled("resilience") {
		t.Error("expected all domains enabled when no filter set")
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	SetDebug(false)
	if IsDebugEnabled("anything") {
		t.Error("expected debug disabled")
	}
}

func TestErrorfReturnsError(t *testing.T) {
	l := NewLogger("test")
	err := l.Errorf("failed to frobnicate %s", "widget")
	if err == nil || err.Error() != "failed to frobnicate widget" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, "loading state")
	if !errors.Is(err, cause) {
		t.Error("expected wrapped error to match cause")
	}
	if err.Error() != "loading state: boom" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
