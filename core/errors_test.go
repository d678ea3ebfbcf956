package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestReceiptsErrorMapperPreservesRichErrors(t *testing.T) {
	source := BadInputError("core: message event without a message", map[string]any{"hook_name": "orders"})
	mapped := ReceiptsErrorMapper(source)
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.Category != goerrors.CategoryBadInput {
		t.Fatalf("unexpected category: %v", mapped.Category)
	}
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("unexpected code: %d", mapped.Code)
	}
	if mapped.TextCode != ReceiptsErrorBadInput {
		t.Fatalf("unexpected text code: %q", mapped.TextCode)
	}
}

func TestReceiptsErrorMapperWrapsPlainErrors(t *testing.T) {
	cases := []struct {
		err      error
		category goerrors.Category
		textCode string
	}{
		{errors.New("signature mismatch"), goerrors.CategoryAuth, ReceiptsErrorSignatureInvalid},
		{fmt.Errorf("hook %q not found", "orders"), goerrors.CategoryNotFound, ReceiptsErrorHookNotFound},
		{errors.New("hook name is required"), goerrors.CategoryBadInput, ReceiptsErrorBadInput},
	}
	for _, tc := range cases {
		mapped := ReceiptsErrorMapper(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapped error for %v", tc.err)
		}
		if mapped.Category != tc.category {
			t.Fatalf("%v: unexpected category %v", tc.err, mapped.Category)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: unexpected text code %q", tc.err, mapped.TextCode)
		}
		if mapped.Code == 0 {
			t.Fatalf("%v: mapped errors always carry an http code", tc.err)
		}
	}
}

func TestReceiptsErrorMapperNil(t *testing.T) {
	if mapped := ReceiptsErrorMapper(nil); mapped != nil {
		t.Fatalf("nil in, nil out, got %v", mapped)
	}
}

func TestReceiptsHTTPStatusByCategory(t *testing.T) {
	if got := receiptsHTTPStatus(goerrors.CategoryAuth); got != http.StatusForbidden {
		t.Fatalf("auth category: got %d", got)
	}
	if got := receiptsHTTPStatus(goerrors.CategoryBadInput); got != http.StatusBadRequest {
		t.Fatalf("bad input category: got %d", got)
	}
	if got := receiptsHTTPStatus(goerrors.CategoryOperation); got != http.StatusInternalServerError {
		t.Fatalf("operation category: got %d", got)
	}
}
