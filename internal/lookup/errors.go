package lookup

import (
	"errors"
	"fmt"

	"applicant-registry/internal/models"
)

var (
	// ErrInvalidCriterion marks a field value that cannot be converted to the
	// column's native type. It aborts the whole lookup.
	ErrInvalidCriterion = errors.New("INVALID_CRITERION")
	// ErrStoreUnavailable marks connection failures and timeouts.
	ErrStoreUnavailable = errors.New("STORE_UNAVAILABLE")
	// ErrQueryFailed marks any other backend failure.
	ErrQueryFailed = errors.New("QUERY_EXECUTION_FAILED")
	// ErrInvalidApplicantKind marks a payload without exactly one recognized kind.
	ErrInvalidApplicantKind = errors.New("INVALID_APPLICANT_KIND")
)

// CriterionError reports which field carried an unusable value.
type CriterionError struct {
	Field models.FieldName
	Value interface{}
	Err   error
}

func (e *CriterionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid criterion: %v", e.Err)
	}
	return fmt.Sprintf("invalid criterion %s=%v: %v", e.Field, e.Value, e.Err)
}

func (e *CriterionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrInvalidCriterion) match every CriterionError.
func (e *CriterionError) Is(target error) bool {
	return target == ErrInvalidCriterion
}

func invalidCriterion(field models.FieldName, value interface{}, format string, args ...interface{}) error {
	return &CriterionError{Field: field, Value: value, Err: fmt.Errorf(format, args...)}
}

// StoreUnavailable wraps err so it matches ErrStoreUnavailable while keeping
// the original cause reachable.
func StoreUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// QueryFailed wraps err so it matches ErrQueryFailed.
func QueryFailed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrQueryFailed, err)
}
