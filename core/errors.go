package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ReceiptsErrorBadInput         = "RECEIPTS_BAD_INPUT"
	ReceiptsErrorSignatureInvalid = "RECEIPTS_SIGNATURE_INVALID"
	ReceiptsErrorForeignHook      = "RECEIPTS_FOREIGN_HOOK"
	ReceiptsErrorHookNotFound     = "RECEIPTS_HOOK_NOT_FOUND"
	ReceiptsErrorStoreFailure     = "RECEIPTS_STORE_FAILURE"
	ReceiptsErrorPublishFailure   = "RECEIPTS_PUBLISH_FAILURE"
	ReceiptsErrorInternal         = "RECEIPTS_INTERNAL_ERROR"
)

func ReceiptsError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ReceiptsWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return ReceiptsError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func BadInputError(message string, metadata map[string]any) error {
	return ReceiptsError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		ReceiptsErrorBadInput,
		metadata,
	)
}

func InternalError(message string, metadata map[string]any) error {
	return ReceiptsError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		ReceiptsErrorInternal,
		metadata,
	)
}

// ReceiptsErrorMapper normalizes arbitrary errors into the engine's
// envelope so transport layers can derive status codes uniformly.
func ReceiptsErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureReceiptsEnvelope(rich)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return ensureReceiptsEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryAuth).
				WithTextCode(ReceiptsErrorSignatureInvalid),
		)
	case strings.Contains(msg, "hook") && strings.Contains(msg, "not"):
		return ensureReceiptsEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryNotFound).
				WithTextCode(ReceiptsErrorHookNotFound),
		)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureReceiptsEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryBadInput).
				WithTextCode(ReceiptsErrorBadInput),
		)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureReceiptsEnvelope(mapped)
}

func ensureReceiptsEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = receiptsHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultReceiptsTextCode(err.Category)
	}
	return err
}

func defaultReceiptsTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ReceiptsErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ReceiptsErrorSignatureInvalid
	case goerrors.CategoryNotFound:
		return ReceiptsErrorHookNotFound
	case goerrors.CategoryOperation:
		return ReceiptsErrorStoreFailure
	default:
		return ReceiptsErrorInternal
	}
}

func receiptsHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusForbidden
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
