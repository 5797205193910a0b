package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Zapadenec1982/ModESP-sub004/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List every registered module and its lifecycle state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	recs := d.Registry.All()
	if len(recs) == 0 {
		fmt.Println("No modules registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tPRIORITY\tSTATE\tERROR")
	for _, rec := range recs {
		errText := ""
		if rec.LastError != nil {
			errText = rec.LastError.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			rec.Manifest.Name,
			rec.Manifest.Type,
			rec.Manifest.Priority,
			rec.State,
			errText,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	busStats := d.Bus.Stats()
	fmt.Printf("\ncpu load: %.2f\n", d.Scheduler.CPULoad())
	fmt.Printf("bus: %s published, %s processed, %s dropped, queue depth %s\n",
		humanize.Comma(int64(busStats.TotalPublished)),
		humanize.Comma(int64(busStats.TotalProcessed)),
		humanize.Comma(int64(busStats.TotalDropped)),
		humanize.Comma(int64(busStats.QueueDepth)),
	)
	return nil
}
