package inventory

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// newValidator returns a validator that reports JSON field names and compares
// decimals numerically.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch d := field.Interface().(type) {
		case decimal.NullDecimal:
			if !d.Valid {
				return nil
			}
			f, _ := d.Decimal.Float64()
			return f
		case decimal.Decimal:
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.NullDecimal{}, decimal.Decimal{})
	return v
}

// validateStruct runs the struct tags of in and converts failures to ErrValidation.
func validateStruct(v *validator.Validate, in interface{}) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid("%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe.Field(), fe.Tag(), fe.Param()))
	}
	return invalid("%s", strings.Join(msgs, "; "))
}

func fieldMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s", field, tag)
	}
}

// validateVar checks a single patch value against tag.
func validateVar(v *validator.Validate, field string, value interface{}, tag string) error {
	err := v.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return invalid("%s", fieldMessage(field, verrs[0].Tag(), verrs[0].Param()))
	}
	return invalid("%s: %v", field, err)
}

// checkPriceScale rejects prices that would lose digits when stored.
func checkPriceScale(d decimal.Decimal) error {
	if !d.Equal(d.Round(priceScale)) {
		return invalid("price must have at most %d decimal places", priceScale)
	}
	return nil
}

func (in BookInput) validate(v *validator.Validate) error {
	if err := validateStruct(v, in); err != nil {
		return err
	}
	if in.Price.Valid {
		return checkPriceScale(in.Price.Decimal)
	}
	return nil
}

func requireNonNull(field string, isNull bool) error {
	if isNull {
		return invalid("%s cannot be null", field)
	}
	return nil
}

func (p BookPatch) validate(v *validator.Validate) error {
	checks := []func() error{
		func() error { return requireNonNull("title", p.Title.Null) },
		func() error { return requireNonNull("authors", p.Authors.Null) },
		func() error { return requireNonNull("publisher", p.Publisher.Null) },
		func() error { return requireNonNull("illustrations", p.Illustrations.Null) },
		func() error {
			if p.Title.Set {
				return validateVar(v, "title", p.Title.Value, "required")
			}
			return nil
		},
		func() error {
			if p.Authors.Set {
				return validateVar(v, "authors", p.Authors.Value, "required")
			}
			return nil
		},
		func() error {
			if p.Publisher.Set {
				return validateVar(v, "publisher", p.Publisher.Value, "required")
			}
			return nil
		},
		func() error {
			if p.Pages.Set && !p.Pages.Null {
				return validateVar(v, "pages", p.Pages.Value, "min=1")
			}
			return nil
		},
		func() error {
			if p.Illustrations.Set {
				return validateVar(v, "illustrations", p.Illustrations.Value, "min=0")
			}
			return nil
		},
		func() error {
			if p.Price.Set && !p.Price.Null {
				f, _ := p.Price.Value.Float64()
				if err := validateVar(v, "price", f, "gte=0"); err != nil {
					return err
				}
				return checkPriceScale(p.Price.Value)
			}
			return nil
		},
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (p BranchPatch) validate(v *validator.Validate) error {
	if err := requireNonNull("name", p.Name.Null); err != nil {
		return err
	}
	if err := requireNonNull("address", p.Address.Null); err != nil {
		return err
	}
	if p.Name.Set {
		if err := validateVar(v, "name", p.Name.Value, "required"); err != nil {
			return err
		}
	}
	if p.Address.Set {
		return validateVar(v, "address", p.Address.Value, "required")
	}
	return nil
}

func (p FacultyPatch) validate(v *validator.Validate) error {
	if err := requireNonNull("name", p.Name.Null); err != nil {
		return err
	}
	if p.Name.Set {
		return validateVar(v, "name", p.Name.Value, "required")
	}
	return nil
}
