package domain

import "errors"

var (
	ErrNotFound            = errors.New("tax_profile_not_found")
	ErrLegalNameRequired   = errors.New("legal_name_required")
	ErrTaxDocumentRequired = errors.New("tax_document_required")
	ErrInvalidTaxDocument  = errors.New("invalid_tax_document")
	ErrAddressIncomplete   = errors.New("address_incomplete")
	ErrInvalidCountry      = errors.New("invalid_country")
	ErrUnknownMunicipality = errors.New("unknown_municipality")
	ErrProfileInUse        = errors.New("tax_profile_in_use")
)
