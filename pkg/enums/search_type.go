package enums

import "strings"

// SearchType is the kind of metered lookup a deduction pays for.
type SearchType string

const (
	SearchTypeCPF   SearchType = "CPF"
	SearchTypeCNPJ  SearchType = "CNPJ"
	SearchTypePhone SearchType = "PHONE"
	SearchTypeEmail SearchType = "EMAIL"
	SearchTypeName  SearchType = "NAME"
)

var searchTypes = []SearchType{SearchTypeCPF, SearchTypeCNPJ, SearchTypePhone, SearchTypeEmail, SearchTypeName}

func (s SearchType) IsValid() bool { return known(s, searchTypes) }

// ParseSearchType accepts lookup kinds as callers send them ("cpf", " Email ").
func ParseSearchType(raw string) (SearchType, error) {
	return parse("search type", strings.ToUpper(strings.TrimSpace(raw)), searchTypes)
}
