package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := New(CodeStalePrice, WithContext("WETH/USDC"))
	wrapped := fmt.Errorf("execute: %w", err)

	if !errors.Is(wrapped, New(CodeStalePrice)) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(wrapped, New(CodeSettlementFailed)) {
		t.Error("different code must not match")
	}
	if !HasCode(wrapped, CodeStalePrice) {
		t.Error("HasCode should match")
	}
	if GetCode(wrapped) != CodeStalePrice {
		t.Errorf("GetCode = %s", GetCode(wrapped))
	}
}

func TestAppError_UnwrapsCause(t *testing.T) {
	cause := errors.New("rpc timeout")
	err := New(CodeSettlementFailed, WithCause(cause))

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if !strings.Contains(err.Error(), "rpc timeout") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, CodeInternalError, "x") != nil {
		t.Error("Wrap(nil) must be nil")
	}

	plain := errors.New("disk full")
	w := Wrap(plain, CodeStorageError, "history")
	if w.Code != CodeStorageError || !errors.Is(w, plain) {
		t.Errorf("unexpected wrap: %v", w)
	}

	orig := New(CodeApprovalInvalid)
	if got := Wrap(orig, CodeStorageError, "ctx"); got.Code != CodeApprovalInvalid {
		t.Errorf("Wrap replaced existing code: %s", got.Code)
	}
}

func TestGetCode_NonAppError(t *testing.T) {
	if GetCode(errors.New("x")) != CodeUnknownError {
		t.Error("plain errors should map to UNKNOWN_ERROR")
	}
}
