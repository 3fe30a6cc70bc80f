package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/go-playground/validator/v10"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Principal is the authenticated caller of a service operation
type Principal struct {
	EmployeeID int64
	CompanyID  int64
	Role       string
}

// HasRole reports whether the principal holds any of roles
func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// RequireRole returns an authorization error unless the principal holds one of roles
func RequireRole(op string, p Principal, roles ...string) error {
	if p.HasRole(roles...) {
		return nil
	}
	return apperr.Forbidden(op, fmt.Sprintf("role %q may not perform this operation", p.Role))
}

// requireSameCompany rejects access to another company's data
func requireSameCompany(op string, p Principal, companyID int64) error {
	if p.CompanyID != companyID {
		return apperr.Forbidden(op, "resource belongs to another company")
	}
	return nil
}

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateRequest runs struct tag validation and reports the first failing field
func validateRequest(op string, req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.ValidationWrap(op, fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()), err)
	}
	return apperr.ValidationWrap(op, "invalid request", err)
}
