package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/recipient"
)

// ProfileKeyOptions holds flags for profile-key set.
type ProfileKeyOptions struct {
	*RootOptions
	Full bool
}

// NewProfileKeyCommand creates the profile-key command group.
func NewProfileKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProfileKeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "profile-key",
		Short: "Manage profile keys",
	}

	set := &cobra.Command{
		Use:   "set <id> <base64-key>",
		Short: "Store a recipient's profile key",
		Long: `Store a 32 byte profile key, given in standard base64.

Storing a new key clears the profile key credential. Storing the key that is
already known is a no-op once the recipient's sealed sender mode has been
validated. With --full the cached profile is also marked stale.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileKeySet(opts, cmd, args[0], args[1])
		},
	}
	set.Flags().BoolVar(&opts.Full, "full", false, "also mark the profile for refetch")

	cmd.AddCommand(set)
	return cmd
}

func runProfileKeySet(opts *ProfileKeyOptions, cmd *cobra.Command, idArg, keyArg string) error {
	out := newFormatter(opts.RootOptions, cmd)
	frozen, err := engine.ParseFrozenID(idArg)
	if err != nil {
		return out.Fail("invalid recipient id", err)
	}
	raw, err := base64.StdEncoding.DecodeString(keyArg)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid profile key: %v", err))
	}
	key, err := recipient.ParseProfileKey(raw)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid profile key: %v", err))
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id := a.engine.Handle(frozen)
	changed, err := a.engine.StoreProfileKey(commandContext(cmd), id, key, opts.Full)
	if err != nil {
		return out.Fail("store profile key", err)
	}
	return out.Success(ProfileKeyView{Recipient: id.Value().Int64(), Changed: changed})
}
