package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ykagano/wiremock-jp/pkg/cli/internal/output"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

var projectDescription string

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long:  `Projects group the WireMock instances and the stubs synchronized to them.`,
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	Example: `  wmjp project add payments
  wmjp project add payments --description "Payment gateway mocks"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &stub.Project{Name: args[0], Description: projectDescription}
		err := withStore(func(s store.Store) error {
			return s.Projects().Create(cmd.Context(), p)
		})
		if err != nil {
			return err
		}
		return printResult(cmd, p, func(w io.Writer) {
			fmt.Fprintf(w, "Created project %s (%s)\n", p.Name, p.ID)
		})
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var projects []*stub.Project
		err := withStore(func(s store.Store) (err error) {
			projects, err = s.Projects().List(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		if projects == nil {
			projects = []*stub.Project{}
		}
		return printTable(cmd, projects, "ID\tNAME\tDESCRIPTION", func(w io.Writer) {
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, output.Truncate(p.Description, 40))
			}
		})
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a project with its instances and stubs",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		err := withStore(func(s store.Store) error {
			return s.Projects().Delete(cmd.Context(), id)
		})
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"deleted": id}, func(w io.Writer) {
			fmt.Fprintf(w, "Deleted project %s\n", id)
		})
	},
}

func init() {
	projectAddCmd.Flags().StringVarP(&projectDescription, "description", "d", "", "Project description")

	projectCmd.AddCommand(projectAddCmd, projectListCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}
