package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/engine"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	ACI      string
	PNI      string
	Number   string
	Username string
	Trust    string
	Self     bool
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a claim to a recipient",
		Long: `Resolve a set of identifiers to the recipient they describe.

High trust claims come from authenticated sources (server lookups, contact
sync) and may bind a number to an ACI or PNI, merging or splitting existing
recipients. Low trust claims come from unauthenticated sources and never bind
a number to an ACI or PNI.

With no identifier flags and --self, resolves the configured local address.

Examples:
  recipients resolve --number +15551234567
  recipients resolve --aci 7c2a... --number +15551234567 --trust high
  recipients resolve --self --db ./recipients.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ACI, "aci", "", "account identifier (UUID)")
	cmd.Flags().StringVar(&opts.PNI, "pni", "", "phone number identity (UUID, optional PNI: prefix)")
	cmd.Flags().StringVar(&opts.Number, "number", "", "E164 phone number")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username")
	cmd.Flags().StringVar(&opts.Trust, "trust", "high", "claim trust (high|low)")
	cmd.Flags().BoolVar(&opts.Self, "self", false, "the claim is the local user's own address")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	trust, err := engine.ParseTrust(opts.Trust)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	noIdentifiers := opts.ACI == "" && opts.PNI == "" && opts.Number == "" && opts.Username == ""
	var addr address.Address
	if !noIdentifiers {
		if addr, err = address.Parse(opts.ACI, opts.PNI, opts.Number, opts.Username); err != nil {
			return out.Fail("invalid address", err)
		}
	} else if !opts.Self {
		return NewExitError(ExitCommandError, "at least one of --aci, --pni, --number, --username or --self is required")
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if noIdentifiers {
		self, err := a.cfg.SelfAddress()
		if err != nil {
			return out.Fail("invalid self address", err)
		}
		if self.IsZero() {
			return out.Fail("resolve self", engine.ErrSelfUnknown)
		}
		addr, trust = self, engine.TrustHigh
	}

	res, err := a.engine.ResolveDetailed(ctx, addr, trust, opts.Self)
	if err != nil {
		return out.Fail("resolve failed", err)
	}
	rec, err := a.engine.Recipient(ctx, res.ID)
	if err != nil {
		return out.Fail("read recipient", err)
	}
	return out.Success(newResolveView(res, rec))
}
