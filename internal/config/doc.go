// Package config loads the CUE configuration file.
//
// The file is unified with an embedded #Config schema, so defaults, allowed
// values and identifier formats are enforced before decoding:
//
//	database:  "/var/lib/recipients/recipients.db"
//	log_level: "debug"
//	self: {
//		aci:    "5b3a4e8a-1f0e-4d5e-9c3a-0d1b2c3d4e5f"
//		number: "+15551234567"
//	}
package config
