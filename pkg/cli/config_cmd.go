package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ykagano/wiremock-jp/pkg/cliconfig"
)

var configAsYAML bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show every setting with its effective value and where it came from:
default, global, local, file, env or flag.

With --yaml the values are printed as a config file that can be saved as
.wmjprc.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configAsYAML {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		}

		out := configOutput{
			ConfigFile: cfg.ConfigFile,
			Database:   cfg.DatabasePath(),
			Values:     make(map[string]string, len(cliconfig.Keys)),
			Sources:    make(map[string]string, len(cliconfig.Keys)),
		}
		for _, key := range cliconfig.Keys {
			out.Values[key] = cfg.Value(key)
			out.Sources[key] = cfg.Source(key)
		}
		return printTable(cmd, out, "KEY\tVALUE\tSOURCE", func(w io.Writer) {
			for _, key := range cliconfig.Keys {
				fmt.Fprintf(w, "%s\t%s\t%s\n", key, displayValue(out.Values[key]), out.Sources[key])
			}
		})
	},
}

// configOutput is the JSON form of the config command.
type configOutput struct {
	ConfigFile string            `json:"configFile,omitempty"`
	Database   string            `json:"databasePath,omitempty"`
	Values     map[string]string `json:"values"`
	Sources    map[string]string `json:"sources"`
}

func displayValue(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func init() {
	configCmd.Flags().BoolVar(&configAsYAML, "yaml", false, "Print the values as YAML")
	rootCmd.AddCommand(configCmd)
}
