// Package address provides the identifier set that describes what is known
// about one contact at a point in time.
//
// An Address carries any subset of:
//   - ACI: the account identifier, permanent for one account
//   - PNI: the phone number identity, reassignable by the server
//   - Number: an E164 phone number, reassignable
//   - Username: optional, never used to match recipients
//
// At least one of ACI, PNI and Number must be present. The only way to build an
// Address is New, which enforces this, so a non-zero Address is always valid.
//
// This package imports nothing internal. Storage and the merge engine build on it.
package address
