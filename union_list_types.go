package xsdc

import (
	"errors"
	"fmt"
	"strings"
)

// listValidator validates whitespace separated lists of an item type.
type listValidator struct {
	name     QName
	base     DatatypeValidator
	item     DatatypeValidator
	nonEmpty bool
}

// NewListValidator derives a list type from item. base is anySimpleType.
func NewListValidator(name QName, base, item DatatypeValidator) (DatatypeValidator, error) {
	if item == nil {
		return nil, fmt.Errorf("list type has no item type")
	}
	if item.Variety() == ListVariety {
		return nil, fmt.Errorf("item type %s of a list cannot itself be a list", item.Name())
	}
	if u, ok := item.(*unionValidator); ok {
		for _, m := range u.members {
			if m.Variety() == ListVariety {
				return nil, fmt.Errorf("item type %s of a list cannot be a union containing a list", item.Name())
			}
		}
	}
	return &listValidator{name: name, base: base, item: item}, nil
}

func (l *listValidator) Name() QName                      { return l.name }
func (l *listValidator) BaseValidator() DatatypeValidator { return l.base }
func (l *listValidator) WhiteSpace() WhiteSpace           { return WhiteSpaceCollapse }
func (l *listValidator) Variety() Variety                 { return ListVariety }

// ItemValidator returns the validator each list item is checked against.
func (l *listValidator) ItemValidator() DatatypeValidator {
	return l.item
}

func (l *listValidator) Validate(value string, ctx ValueContext) error {
	items := strings.Fields(value)
	if l.nonEmpty && len(items) == 0 {
		return fmt.Errorf("%s cannot be empty", l.name.Local)
	}
	for i, item := range items {
		if err := l.item.Validate(item, ctx); err != nil {
			return fmt.Errorf("list item %d ('%s') is invalid: %w", i+1, item, err)
		}
	}
	return nil
}

func (l *listValidator) SetFacets(name QName, facets map[string][]string) (DatatypeValidator, error) {
	return newRestrictionValidator(name, l, facets)
}

// unionValidator accepts values valid against any of its member types.
type unionValidator struct {
	name    QName
	base    DatatypeValidator
	members []DatatypeValidator
}

// NewUnionValidator builds a union of members. base is anySimpleType.
func NewUnionValidator(name QName, base DatatypeValidator, members []DatatypeValidator) (DatatypeValidator, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("union type has no member types")
	}
	return &unionValidator{name: name, base: base, members: members}, nil
}

func (u *unionValidator) Name() QName                      { return u.name }
func (u *unionValidator) BaseValidator() DatatypeValidator { return u.base }
func (u *unionValidator) WhiteSpace() WhiteSpace           { return WhiteSpaceCollapse }
func (u *unionValidator) Variety() Variety                 { return UnionVariety }

// Members returns the member validators in declaration order.
func (u *unionValidator) Members() []DatatypeValidator {
	return u.members
}

func (u *unionValidator) Validate(value string, ctx ValueContext) error {
	var errs []error
	for _, m := range u.members {
		err := m.Validate(value, ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("value '%s' is not valid against any member type of the union: %w", value, errors.Join(errs...))
}

func (u *unionValidator) SetFacets(name QName, facets map[string][]string) (DatatypeValidator, error) {
	return newRestrictionValidator(name, u, facets)
}
