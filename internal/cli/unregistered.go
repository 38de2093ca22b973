package cli

import (
	"github.com/spf13/cobra"
)

// NewUnregisteredCommand creates the unregistered command.
func NewUnregisteredCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unregistered <number>...",
		Short: "Record numbers the server reports as unregistered",
		Long: `Record that phone numbers are no longer registered.

A recipient that also has an ACI or PNI loses the number, since it may be
reassigned. A number-only recipient keeps it. Both are marked with the time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.engine.MarkUnregistered(commandContext(cmd), args)
			if err != nil {
				return a.out.Fail("mark unregistered", err)
			}
			return a.out.Success(IDsView{Caption: "marked unregistered", Recipients: handleInts(ids)})
		},
	}
}
