package address

import "errors"

var (
	// ErrNoIdentifier is returned when an address would carry no ACI, PNI or number.
	ErrNoIdentifier = errors.New("address has no identifier")

	// ErrInvalidNumber is returned for numbers that are not E164.
	ErrInvalidNumber = errors.New("invalid E164 number")

	// ErrInvalidUsername is returned for usernames that fail validation.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidServiceID is returned when an ACI or PNI cannot be parsed.
	ErrInvalidServiceID = errors.New("invalid service id")
)
