package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/recipient"
)

// ContactOptions holds flags for contact set.
type ContactOptions struct {
	*RootOptions
	GivenName      string
	FamilyName     string
	Color          string
	Expiration     time.Duration
	Blocked        bool
	Archived       bool
	ProfileSharing bool
}

// NewContactCommand creates the contact command group.
func NewContactCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Edit contact metadata",
	}
	cmd.AddCommand(newContactSetCommand(rootOpts))
	cmd.AddCommand(newContactDeleteCommand(rootOpts))
	return cmd
}

func newContactSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Set contact fields on a recipient",
		Long: `Set contact fields on a recipient. Only the flags given are changed;
other fields keep their stored values.

Example:
  recipients contact set 42 --given-name Ada --family-name Lovelace --blocked=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContactSet(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.GivenName, "given-name", "", "given name")
	cmd.Flags().StringVar(&opts.FamilyName, "family-name", "", "family name")
	cmd.Flags().StringVar(&opts.Color, "color", "", "conversation color")
	cmd.Flags().DurationVar(&opts.Expiration, "expiration", 0, "disappearing message timer, e.g. 1h")
	cmd.Flags().BoolVar(&opts.Blocked, "blocked", false, "block the recipient")
	cmd.Flags().BoolVar(&opts.Archived, "archived", false, "archive the conversation")
	cmd.Flags().BoolVar(&opts.ProfileSharing, "profile-sharing", false, "share the local profile")

	return cmd
}

func runContactSet(opts *ContactOptions, cmd *cobra.Command, arg string) error {
	out := newFormatter(opts.RootOptions, cmd)
	frozen, err := engine.ParseFrozenID(arg)
	if err != nil {
		return out.Fail("invalid recipient id", err)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	id := a.engine.Handle(frozen)
	c, err := a.engine.Contact(ctx, id)
	if err != nil {
		return out.Fail("read contact", err)
	}
	if c == nil {
		c = &recipient.Contact{}
	}

	flags := cmd.Flags()
	if flags.Changed("given-name") {
		c.GivenName = opts.GivenName
	}
	if flags.Changed("family-name") {
		c.FamilyName = opts.FamilyName
	}
	if flags.Changed("color") {
		c.Color = opts.Color
	}
	if flags.Changed("expiration") {
		c.MessageExpiration = opts.Expiration
	}
	if flags.Changed("blocked") {
		c.Blocked = opts.Blocked
	}
	if flags.Changed("archived") {
		c.Archived = opts.Archived
	}
	if flags.Changed("profile-sharing") {
		c.ProfileSharing = opts.ProfileSharing
	}

	if err := a.engine.StoreContact(ctx, id, c); err != nil {
		return out.Fail("store contact", err)
	}
	rec, err := a.engine.Recipient(ctx, id)
	if err != nil {
		return out.Fail("read recipient", err)
	}
	return out.Success(newRecipientView(rec))
}

func newContactDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove contact metadata, keeping the recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			frozen, err := engine.ParseFrozenID(args[0])
			if err != nil {
				return out.Fail("invalid recipient id", err)
			}

			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			id := a.engine.Handle(frozen)
			if err := a.engine.DeleteContact(ctx, id); err != nil {
				return out.Fail("delete contact", err)
			}
			rec, err := a.engine.Recipient(ctx, id)
			if err != nil {
				return out.Fail("read recipient", err)
			}
			return out.Success(newRecipientView(rec))
		},
	}
}
