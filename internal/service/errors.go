package service

import (
	"errors"
	"fmt"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/notify"
	"storefront-service/internal/store"

	"github.com/go-playground/validator/v10"
)

// Kind classifies errors for transport mapping
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindUnauthenticated
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	}
	return "internal"
}

// Error is a domain error with a stable code
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrProductNotFound      = &Error{KindNotFound, "PRODUCT_NOT_FOUND", "product not found"}
	ErrProductInactive      = &Error{KindConflict, "PRODUCT_INACTIVE", "product is not available for sale"}
	ErrVariantNotFound      = &Error{KindNotFound, "VARIANT_NOT_FOUND", "variant not found for this product"}
	ErrVariantRequired      = &Error{KindValidation, "VARIANT_REQUIRED", "this product must be ordered by variant"}
	ErrVariantNotApplicable = &Error{KindValidation, "VARIANT_NOT_APPLICABLE", "this product has no variants"}
	ErrInvalidQuantity      = &Error{KindValidation, "INVALID_QUANTITY", "quantity must be greater than zero"}
	ErrCheckoutInProgress   = &Error{KindConflict, "CHECKOUT_IN_PROGRESS", "a checkout with this idempotency key is already in progress"}
	ErrConcurrentUpdate     = &Error{KindConflict, "CONCURRENT_UPDATE", "the record was changed by another request"}

	ErrNotFound  = &Error{KindNotFound, "NOT_FOUND", "resource not found"}
	ErrDuplicate = &Error{KindConflict, "DUPLICATE", "resource already exists"}
	ErrInUse     = &Error{KindConflict, "IN_USE", "resource is still referenced"}

	ErrUnauthorized       = &Error{KindUnauthorized, "UNAUTHORIZED", "not authorized to perform this action"}
	ErrUnauthenticated    = &Error{KindUnauthenticated, "UNAUTHENTICATED", "authentication required"}
	ErrInvalidCredentials = &Error{KindUnauthenticated, "INVALID_CREDENTIALS", "invalid username or password"}
	ErrTooManyAttempts    = &Error{KindRateLimited, "TOO_MANY_ATTEMPTS", "too many login attempts, try again later"}
	ErrSelfDelete         = &Error{KindConflict, "SELF_DELETE", "cannot delete the signed-in user"}
)

// InsufficientStockError reports a reservation the stock could not cover
type InsufficientStockError struct {
	ProductID int64
	VariantID *int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

// InvalidStatusTransitionError reports a transition the state machine forbids
type InvalidStatusTransitionError struct {
	From models.TransactionStatus
	To   models.TransactionStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// FieldError is a single invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports invalid input
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// fromValidator converts validator output into a ValidationError
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: describeTag(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt", "gte", "min":
		return "must be at least " + fe.Param()
	case "lt", "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}

// Problem is the transport view of an error
type Problem struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
}

// Describe classifies err. Unknown errors become a generic internal problem
// so infrastructure details never leak to clients.
func Describe(err error) Problem {
	var (
		domain *Error
		stock  *InsufficientStockError
		trans  *InvalidStatusTransitionError
		valid  *ValidationError
		format *notify.FormatError
	)

	switch {
	case errors.As(err, &stock):
		details := map[string]interface{}{
			"productId": stock.ProductID,
			"requested": stock.Requested,
			"available": stock.Available,
		}
		if stock.VariantID != nil {
			details["variantId"] = *stock.VariantID
		}
		return Problem{KindConflict, "INSUFFICIENT_STOCK", stock.Error(), details}
	case errors.As(err, &trans):
		return Problem{KindConflict, "INVALID_STATUS_TRANSITION", trans.Error(), map[string]interface{}{
			"from":    trans.From,
			"to":      trans.To,
			"allowed": models.NextStatuses(trans.From),
		}}
	case errors.As(err, &valid):
		return Problem{KindValidation, "VALIDATION_FAILED", "request validation failed", map[string]interface{}{
			"fields": valid.Fields,
		}}
	case errors.As(err, &format):
		return Problem{KindValidation, "FORMAT_ERROR", format.Error(), map[string]interface{}{
			"field": format.Field,
		}}
	case errors.As(err, &domain):
		return Problem{Kind: domain.Kind, Code: domain.Code, Message: domain.Message}
	case errors.Is(err, store.ErrNotFound):
		return Problem{Kind: KindNotFound, Code: ErrNotFound.Code, Message: ErrNotFound.Message}
	case errors.Is(err, store.ErrDuplicate):
		return Problem{Kind: KindConflict, Code: ErrDuplicate.Code, Message: ErrDuplicate.Message}
	case errors.Is(err, store.ErrReferenced):
		return Problem{Kind: KindConflict, Code: ErrInUse.Code, Message: ErrInUse.Message}
	case errors.Is(err, store.ErrTxAborted):
		return Problem{Kind: KindConflict, Code: ErrConcurrentUpdate.Code, Message: ErrConcurrentUpdate.Message}
	}
	return Problem{Kind: KindInternal, Code: "INTERNAL", Message: "internal server error"}
}

// KindOf returns the classification of err
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	return Describe(err).Kind
}

// translateStoreError maps store sentinels to the service vocabulary
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrDuplicate
	case errors.Is(err, store.ErrReferenced):
		return ErrInUse
	case errors.Is(err, store.ErrTxAborted):
		return ErrConcurrentUpdate
	}
	return err
}
