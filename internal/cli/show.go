package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/store"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recipient",
		Long: `Show a recipient's identifiers, contact, profile and whether its
profile key is known.

Example:
  recipients show 42 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, cmd, args[0])
		},
	}
}

func runShow(opts *RootOptions, cmd *cobra.Command, arg string) error {
	out := newFormatter(opts, cmd)
	frozen, err := engine.ParseFrozenID(arg)
	if err != nil {
		return out.Fail("invalid recipient id", err)
	}

	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.Recipient(commandContext(cmd), a.engine.Handle(frozen))
	if err != nil {
		return out.Fail("show failed", err)
	}
	return out.Success(DetailView{RecipientView: newRecipientView(rec)})
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Blocked  bool
	Contacts bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recipients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Blocked, "blocked", false, "only blocked recipients")
	cmd.Flags().BoolVar(&opts.Contacts, "contacts", false, "only recipients with contact metadata")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.engine.List(commandContext(cmd), store.ListFilter{
		Blocked:      opts.Blocked,
		ContactsOnly: opts.Contacts,
	})
	if err != nil {
		return a.out.Fail("list failed", err)
	}

	view := ListView{Recipients: make([]RecipientView, len(records))}
	for i := range records {
		view.Recipients[i] = newRecipientView(&records[i])
	}
	return a.out.Success(view)
}
