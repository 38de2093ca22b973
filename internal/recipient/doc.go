// Package recipient defines the data a recipient row owns besides its
// identifiers: contact metadata, the fetched profile and the profile key.
//
// Each attachment is optional. A nil *Contact or *Profile means "never set",
// which is distinct from a set value whose fields are empty; merges rely on
// that distinction (first non-nil value wins).
package recipient
