package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zapadenec1982/ModESP-sub004/internal/daemon"
)

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit persisted configuration sections",
}

var configGetCmd = &cobra.Command{
	Use:   "get PATH",
	Short: "Print the value at a dotted config path, e.g. climate.setpoint_c",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set PATH VALUE",
	Short: "Set the value at a dotted config path and persist it",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	section, rest := splitConfigPath(args[0])
	doc, err := d.ConfigStore.Export(section)
	if err != nil {
		return err
	}

	v, ok := walkPath(doc, rest)
	if !ok {
		return fmt.Errorf("no value at %q", args[0])
	}
	fmt.Printf("%v\n", v)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.ConfigStore.Set(args[0], parseValue(args[1])); err != nil {
		return err
	}
	return d.ConfigStore.Save(firstSegment(args[0]))
}

func splitConfigPath(path string) (section string, rest []string) {
	parts := strings.Split(path, ".")
	return parts[0], parts[1:]
}

func firstSegment(path string) string {
	section, _ := splitConfigPath(path)
	return section
}

func walkPath(doc map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return doc, true
	}
	cur := any(doc)
	for i, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		cur = v
	}
	return nil, false
}

// parseValue coerces a command-line argument by its literal form: bool
// and number literals first, string otherwise. The section schema is not
// consulted; Store.Set validates the result.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
