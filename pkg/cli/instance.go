package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ykagano/wiremock-jp/pkg/health"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

// instanceFlags holds the flags of the instance commands.
type instanceFlags struct {
	project   string
	name      string
	inactive  bool
	unmatched bool
	query     string
	yes       bool
}

var instanceFlagVals instanceFlags

var instanceCmd = &cobra.Command{
	Use:     "instance",
	Aliases: []string{"instances"},
	Short:   "Manage WireMock instances",
	Long: `Manage the WireMock instances registered for a project and inspect them
through the WireMock admin API.`,
}

var instanceAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a WireMock instance",
	Args:  cobra.ExactArgs(1),
	Example: `  wmjp instance add http://localhost:8080 --project <id> --name local
  wmjp instance add https://mock.staging:8443 --project <id> --inactive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &instanceFlagVals
		inst := &stub.Instance{
			ProjectID: f.project,
			Name:      f.name,
			URL:       args[0],
			Active:    !f.inactive,
		}
		if inst.Name == "" {
			inst.Name = inst.URL
		}
		err := withStore(func(s store.Store) error {
			return s.Instances().Create(cmd.Context(), inst)
		})
		if err != nil {
			return err
		}
		return printResult(cmd, inst, func(w io.Writer) {
			fmt.Fprintf(w, "Registered instance %s (%s) at %s\n", inst.Name, inst.ID, inst.URL)
		})
	},
}

var instanceListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the instances of a project",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var insts []*stub.Instance
		err := withStore(func(s store.Store) (err error) {
			insts, err = s.Instances().List(cmd.Context(), instanceFlagVals.project)
			return err
		})
		if err != nil {
			return err
		}
		if insts == nil {
			insts = []*stub.Instance{}
		}
		return printTable(cmd, insts, "ID\tNAME\tURL\tACTIVE", func(w io.Writer) {
			for _, inst := range insts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", inst.ID, inst.Name, inst.URL, inst.Active)
			}
		})
	},
}

var instanceDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Remove an instance from its project",
	Long:    `Remove an instance registration. Mappings on the instance are left alone.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if err := withStore(func(s store.Store) error {
			return s.Instances().Delete(cmd.Context(), id)
		}); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"deleted": id}, func(w io.Writer) {
			fmt.Fprintf(w, "Deleted instance %s\n", id)
		})
	},
}

var instanceEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Include an instance in project-wide syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setInstanceActive(cmd, args[0], true)
	},
}

var instanceDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Exclude an instance from project-wide syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setInstanceActive(cmd, args[0], false)
	},
}

func setInstanceActive(cmd *cobra.Command, id string, active bool) error {
	var inst *stub.Instance
	err := withStore(func(s store.Store) (err error) {
		if inst, err = s.Instances().Get(cmd.Context(), id); err != nil {
			return err
		}
		inst.Active = active
		return s.Instances().Update(cmd.Context(), inst)
	})
	if err != nil {
		return err
	}
	return printResult(cmd, inst, func(w io.Writer) {
		state := "Disabled"
		if active {
			state = "Enabled"
		}
		fmt.Fprintf(w, "%s instance %s\n", state, inst.ID)
	})
}

var instanceHealthCmd = &cobra.Command{
	Use:   "health [id]",
	Short: "Probe instances for reachability",
	Long: `Probe one instance, or every active instance of --project, with a single
GET of the mapping listing. An unreachable instance is reported, not an error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && instanceFlagVals.project == "" {
			return errors.New("an instance id or --project is required")
		}
		var statuses []health.Status
		err := withStore(func(s store.Store) error {
			p := health.New(s, health.WithProbeTimeout(cfg.ProbeTimeout), health.WithLogger(log))
			if len(args) == 0 {
				var err error
				statuses, err = p.ProbeProject(cmd.Context(), instanceFlagVals.project)
				return err
			}
			inst, err := s.Instances().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			start := time.Now()
			healthy := p.ProbeURL(cmd.Context(), inst.URL)
			statuses = []health.Status{{
				InstanceID: inst.ID,
				Name:       inst.Name,
				URL:        inst.URL,
				Healthy:    healthy,
				Latency:    time.Since(start),
			}}
			return nil
		})
		if err != nil {
			return err
		}
		return printTable(cmd, statuses, "ID\tNAME\tURL\tHEALTHY\tLATENCY", func(w io.Writer) {
			for _, st := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", st.InstanceID, st.Name, st.URL, st.Healthy, st.Latency.Round(time.Millisecond))
			}
		})
	},
}

var instanceMappingsCmd = &cobra.Command{
	Use:   "mappings <id> [mapping-id]",
	Short: "List the mappings currently on an instance, or show one",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := instanceClient(cmd, args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			m, err := client.GetMapping(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return printResult(cmd, m, func(w io.Writer) {
				method, url := requestLine(m.Request)
				fmt.Fprintf(w, "ID:      %s\n", m.ID)
				fmt.Fprintf(w, "Name:    %s\n", m.Name)
				fmt.Fprintf(w, "Request: %s %s\n", method, url)
				if id := stub.TaggedStubID(m.Metadata); id != "" {
					fmt.Fprintf(w, "Stub:    %s\n", id)
				}
			})
		}
		resp, err := client.ListMappings(cmd.Context())
		if err != nil {
			return err
		}
		return printTable(cmd, resp, "ID\tNAME\tMETHOD\tURL\tSTUB", func(w io.Writer) {
			for _, m := range resp.Mappings {
				method, url := requestLine(m.Request)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, method, url, stub.TaggedStubID(m.Metadata))
			}
		})
	},
}

var instanceRequestsCmd = &cobra.Command{
	Use:   "requests <id>",
	Short: "Show the request journal of an instance",
	Args:  cobra.ExactArgs(1),
	Example: `  wmjp instance requests <id>
  wmjp instance requests <id> --unmatched
  wmjp instance requests <id> --query '$.requests[*].request.url'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &instanceFlagVals
		client, err := instanceClient(cmd, args[0])
		if err != nil {
			return err
		}
		var resp *wiremock.RequestsResponse
		if f.unmatched {
			resp, err = client.ListUnmatchedRequests(cmd.Context())
		} else {
			resp, err = client.ListRequests(cmd.Context())
		}
		if err != nil {
			return err
		}
		if f.query != "" {
			results, err := queryJSON(resp, f.query)
			if err != nil {
				return err
			}
			return printQuery(cmd, results)
		}
		return printTable(cmd, resp, "ID\tMETHOD\tURL\tSTATUS\tMATCHED\tLOGGED", func(w io.Writer) {
			for _, req := range resp.Requests {
				status := "-"
				if req.ResponseDefinition != nil {
					status = fmt.Sprint(req.ResponseDefinition.Status)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", req.ID, req.Request.Method, req.Request.URL,
					status, req.WasMatched, req.Request.LoggedDateString)
			}
		})
	},
}

var instanceResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Reset an instance to its startup state",
	Long: `Reset an instance: mappings created at runtime, the request journal and
scenario state are discarded on the instance. Local stubs keep their remote
ids and are re-created on the next sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return remoteAction(cmd, args[0], "Reset", "reset", func(c *wiremock.Client, cmd *cobra.Command) error {
			return c.Reset(cmd.Context())
		})
	},
}

var instanceClearRequestsCmd = &cobra.Command{
	Use:   "clear-requests <id>",
	Short: "Clear the request journal of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return remoteAction(cmd, args[0], "Clear the request journal of", "cleared requests of", func(c *wiremock.Client, cmd *cobra.Command) error {
			return c.ClearRequests(cmd.Context())
		})
	},
}

// remoteAction confirms and runs a destructive call against instance id.
func remoteAction(cmd *cobra.Command, id, prompt, done string, call func(*wiremock.Client, *cobra.Command) error) error {
	var inst *stub.Instance
	if err := withStore(func(s store.Store) (err error) {
		inst, err = s.Instances().Get(cmd.Context(), id)
		return err
	}); err != nil {
		return err
	}

	ok, err := confirm(instanceFlagVals.yes, fmt.Sprintf("%s %s (%s)?", prompt, inst.Name, inst.URL))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.ErrOrStderr(), "Aborted")
		return nil
	}

	if err := call(newRemoteClient(inst), cmd); err != nil {
		return err
	}
	return printResult(cmd, map[string]string{"instanceId": inst.ID, "status": "ok"}, func(w io.Writer) {
		fmt.Fprintf(w, "Instance %s: %s\n", inst.ID, done)
	})
}

// instanceClient looks up instance id and returns a client for it.
func instanceClient(cmd *cobra.Command, id string) (*wiremock.Client, error) {
	var inst *stub.Instance
	err := withStore(func(s store.Store) (err error) {
		inst, err = s.Instances().Get(cmd.Context(), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newRemoteClient(inst), nil
}

func newRemoteClient(inst *stub.Instance) *wiremock.Client {
	return wiremock.New(inst.URL,
		wiremock.WithTimeout(cfg.SyncTimeout),
		wiremock.WithProbeTimeout(cfg.ProbeTimeout),
		wiremock.WithLogger(log),
	)
}

func init() {
	f := &instanceFlagVals

	for _, c := range []*cobra.Command{instanceAddCmd, instanceListCmd, instanceHealthCmd} {
		c.Flags().StringVarP(&f.project, "project", "p", "", "Project id")
	}
	_ = instanceAddCmd.MarkFlagRequired("project")
	_ = instanceListCmd.MarkFlagRequired("project")
	instanceAddCmd.Flags().StringVarP(&f.name, "name", "n", "", "Display name (defaults to the URL)")
	instanceAddCmd.Flags().BoolVar(&f.inactive, "inactive", false, "Register the instance as inactive")

	instanceRequestsCmd.Flags().BoolVar(&f.unmatched, "unmatched", false, "Only requests no mapping matched")
	instanceRequestsCmd.Flags().StringVarP(&f.query, "query", "q", "", "JSONPath expression applied to the journal")

	instanceResetCmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Do not ask for confirmation")
	instanceClearRequestsCmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Do not ask for confirmation")

	instanceCmd.AddCommand(
		instanceAddCmd, instanceListCmd, instanceDeleteCmd,
		instanceEnableCmd, instanceDisableCmd, instanceHealthCmd,
		instanceMappingsCmd, instanceRequestsCmd,
		instanceResetCmd, instanceClearRequestsCmd,
	)
	rootCmd.AddCommand(instanceCmd)
}
