package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/recipient"
)

// ContactFile is a contact-sync export.
type ContactFile struct {
	Contacts []ContactEntry `yaml:"contacts"`
}

// ContactEntry is one synced contact: its identifiers and the metadata to store.
type ContactEntry struct {
	ACI               string `yaml:"aci,omitempty"`
	PNI               string `yaml:"pni,omitempty"`
	Number            string `yaml:"number,omitempty"`
	Username          string `yaml:"username,omitempty"`
	GivenName         string `yaml:"given_name,omitempty"`
	FamilyName        string `yaml:"family_name,omitempty"`
	Color             string `yaml:"color,omitempty"`
	ExpirationSeconds int64  `yaml:"expiration_seconds,omitempty"`
	Blocked           bool   `yaml:"blocked,omitempty"`
	Archived          bool   `yaml:"archived,omitempty"`
	ProfileSharing    bool   `yaml:"profile_sharing,omitempty"`
}

func (e ContactEntry) contact() *recipient.Contact {
	return &recipient.Contact{
		GivenName:         e.GivenName,
		FamilyName:        e.FamilyName,
		Color:             e.Color,
		MessageExpiration: time.Duration(e.ExpirationSeconds) * time.Second,
		Blocked:           e.Blocked,
		Archived:          e.Archived,
		ProfileSharing:    e.ProfileSharing,
	}
}

// LoadContactFile reads a contact-sync YAML file. Unknown fields are rejected.
func LoadContactFile(path string) (*ContactFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contact file: %w", err)
	}
	var f ContactFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse contact file: %w", err)
	}
	return &f, nil
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <contacts.yaml>",
		Short: "Import a contact-sync file",
		Long: `Import contacts from a sync file. Each entry is resolved as a high
trust claim and its contact metadata stored on the resulting recipient.

File format:
  contacts:
    - aci: 7c2a...
      number: "+15551234567"
      given_name: Ada
      blocked: false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0])
		},
	}
}

func runImport(opts *RootOptions, cmd *cobra.Command, path string) error {
	out := newFormatter(opts, cmd)

	file, err := LoadContactFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "import failed", err)
	}
	addrs := make([]address.Address, len(file.Contacts))
	for i, entry := range file.Contacts {
		addr, err := address.Parse(entry.ACI, entry.PNI, entry.Number, entry.Username)
		if err != nil {
			return out.Fail(fmt.Sprintf("contacts[%d]", i), err)
		}
		addrs[i] = addr
	}

	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	ids, err := a.engine.ResolveAll(ctx, addrs, engine.TrustHigh)
	if err != nil {
		return out.Fail("import failed", err)
	}
	for i, id := range ids {
		if err := a.engine.StoreContact(ctx, id, file.Contacts[i].contact()); err != nil {
			return out.Fail(fmt.Sprintf("contacts[%d]", i), err)
		}
	}
	a.logger.Info("contacts imported", "count", len(ids), "path", path)

	return out.Success(IDsView{Caption: "imported", Recipients: handleInts(ids)})
}
