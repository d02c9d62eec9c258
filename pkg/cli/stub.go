package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
)

// stubFlags holds the flags of the stub commands.
type stubFlags struct {
	project     string
	instance    string
	name        string
	description string
	file        string
	mapping     string
	inactive    bool
	activeOnly  bool
}

var stubFlagVals stubFlags

var stubCmd = &cobra.Command{
	Use:     "stub",
	Aliases: []string{"stubs"},
	Short:   "Manage stubs and push them to instances",
	Long: `Stubs are WireMock mapping documents stored per project. A stub records
the identifier WireMock assigned to it, so syncing again updates the same
remote mapping instead of creating a copy.`,
}

var stubAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a stub from a mapping document",
	Args:  cobra.NoArgs,
	Example: `  wmjp stub add --project <id> --file mapping.json
  wmjp stub add --project <id> --mapping '{"request":{"method":"GET","url":"/ping"},"response":{"status":200}}'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := &stubFlagVals
		mapping, name, err := readMapping(f.file, f.mapping)
		if err != nil {
			return err
		}
		if mapping == nil {
			return errors.New("--file or --mapping is required")
		}
		st := &stub.Stub{
			ProjectID:   f.project,
			Name:        f.name,
			Description: f.description,
			Mapping:     mapping,
			Active:      !f.inactive,
		}
		if st.Name == "" {
			st.Name = name
		}
		if err := withStore(func(s store.Store) error {
			return s.Stubs().Create(cmd.Context(), st)
		}); err != nil {
			return err
		}
		return printResult(cmd, st, func(w io.Writer) {
			fmt.Fprintf(w, "Created stub %s\n", st.ID)
		})
	},
}

var stubListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the stubs of a project",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := &stubFlagVals
		var stubs []*stub.Stub
		err := withStore(func(s store.Store) (err error) {
			if f.activeOnly {
				stubs, err = s.Stubs().ListActive(cmd.Context(), f.project)
			} else {
				stubs, err = s.Stubs().List(cmd.Context(), f.project)
			}
			return err
		})
		if err != nil {
			return err
		}
		if stubs == nil {
			stubs = []*stub.Stub{}
		}
		return printTable(cmd, stubs, "ID\tNAME\tMETHOD\tURL\tACTIVE\tVERSION\tREMOTE", func(w io.Writer) {
			for _, st := range stubs {
				method, url := requestLine(requestOf(st.Mapping))
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%s\n", st.ID, st.Name, method, url, st.Active, st.Version, remoteLabel(st))
			}
		})
	},
}

var stubShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stub with its mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var st *stub.Stub
		if err := withStore(func(s store.Store) (err error) {
			st, err = s.Stubs().Get(cmd.Context(), args[0])
			return err
		}); err != nil {
			return err
		}
		return printResult(cmd, st, func(w io.Writer) {
			fmt.Fprintf(w, "ID:          %s\n", st.ID)
			fmt.Fprintf(w, "Project:     %s\n", st.ProjectID)
			fmt.Fprintf(w, "Name:        %s\n", st.Name)
			if st.Description != "" {
				fmt.Fprintf(w, "Description: %s\n", st.Description)
			}
			fmt.Fprintf(w, "Active:      %t\n", st.Active)
			fmt.Fprintf(w, "Version:     %d\n", st.Version)
			fmt.Fprintf(w, "Remote ID:   %s\n", remoteLabel(st))
			fmt.Fprintln(w, "Mapping:")
			pretty, err := json.MarshalIndent(st.Mapping, "  ", "  ")
			if err != nil {
				pretty = st.Mapping
			}
			fmt.Fprintf(w, "  %s\n", pretty)
		})
	},
}

var stubUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a stub's metadata or mapping",
	Long: `Change a stub's name, description or mapping. Only a changed mapping moves
the stub's version. The new mapping replaces the stored one as given,
including its "id".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &stubFlagVals
		flags := cmd.Flags()
		mapping, _, err := readMapping(f.file, f.mapping)
		if err != nil {
			return err
		}
		if mapping != nil {
			if err := stub.ValidateMapping(mapping); err != nil {
				return err
			}
		}
		metadata := flags.Changed("name") || flags.Changed("description")
		if !metadata && mapping == nil {
			return errors.New("nothing to update: pass --name, --description, --file or --mapping")
		}

		var st *stub.Stub
		err = withStore(func(s store.Store) (err error) {
			ctx := cmd.Context()
			if st, err = s.Stubs().Get(ctx, args[0]); err != nil {
				return err
			}
			if metadata {
				if flags.Changed("name") {
					st.Name = f.name
				}
				if flags.Changed("description") {
					st.Description = f.description
				}
				if err := s.Stubs().Update(ctx, st); err != nil {
					return err
				}
			}
			if mapping != nil {
				st, err = s.Stubs().UpdateMappingPayload(ctx, st.ID, mapping)
				return err
			}
			st, err = s.Stubs().Get(ctx, st.ID)
			return err
		})
		if err != nil {
			return err
		}
		return printResult(cmd, st, func(w io.Writer) {
			fmt.Fprintf(w, "Updated stub %s (version %d)\n", st.ID, st.Version)
		})
	},
}

var stubEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Include a stub in syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStubActive(cmd, args[0], true)
	},
}

var stubDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Exclude a stub from syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStubActive(cmd, args[0], false)
	},
}

func setStubActive(cmd *cobra.Command, id string, active bool) error {
	var st *stub.Stub
	err := withStore(func(s store.Store) (err error) {
		if st, err = s.Stubs().Get(cmd.Context(), id); err != nil {
			return err
		}
		st.Active = active
		return s.Stubs().Update(cmd.Context(), st)
	})
	if err != nil {
		return err
	}
	return printResult(cmd, st, func(w io.Writer) {
		state := "Disabled"
		if active {
			state = "Enabled"
		}
		fmt.Fprintf(w, "%s stub %s\n", state, st.ID)
	})
}

var stubDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a stub",
	Long: `Delete a stub locally. Mappings already pushed to instances are left
alone unless --instance is given, in which case the stub's mapping is first
removed from that instance. The stub is kept if the removal fails.`,
	Args: cobra.ExactArgs(1),
	Example: `  wmjp stub delete <id>
  wmjp stub delete <id> --instance <instance-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		var remoteID string
		if err := withStore(func(s store.Store) error {
			if instanceID := stubFlagVals.instance; instanceID != "" {
				var err error
				if remoteID, err = newOrchestrator(s, log).Unpublish(cmd.Context(), id, instanceID); err != nil {
					return err
				}
			}
			return s.Stubs().Delete(cmd.Context(), id)
		}); err != nil {
			return err
		}
		out := map[string]string{"deleted": id}
		if remoteID != "" {
			out["remoteId"] = remoteID
		}
		return printResult(cmd, out, func(w io.Writer) {
			if remoteID != "" {
				fmt.Fprintf(w, "Removed mapping %s from instance %s\n", remoteID, stubFlagVals.instance)
			}
			fmt.Fprintf(w, "Deleted stub %s\n", id)
		})
	},
}

var stubImportCmd = &cobra.Command{
	Use:   "import <path|glob>...",
	Short: "Create stubs from mapping files",
	Long: `Create one stub per mapping found in the given JSON or YAML files. A file
may hold a single mapping, a list of mappings or a WireMock export
({"mappings": [...]}). Globs support "**". Every file is validated before
anything is stored.`,
	Args: cobra.MinimumNArgs(1),
	Example: `  wmjp stub import --project <id> mappings/*.json
  wmjp stub import --project <id> 'mocks/**/*.yaml'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &stubFlagVals
		docs, err := stub.LoadPaths(args)
		if err != nil {
			return err
		}

		created := make([]*stub.Stub, 0, len(docs))
		err = withStore(func(s store.Store) error {
			for _, doc := range docs {
				st := &stub.Stub{
					ProjectID: f.project,
					Name:      doc.Name,
					Mapping:   doc.Mapping,
					Active:    !f.inactive,
				}
				if err := s.Stubs().Create(cmd.Context(), st); err != nil {
					return fmt.Errorf("%s: %w", doc.Source, err)
				}
				created = append(created, st)
			}
			return nil
		})
		if err != nil {
			if len(created) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Imported %d of %d stubs before the error\n", len(created), len(docs))
			}
			return err
		}
		return printResult(cmd, created, func(w io.Writer) {
			fmt.Fprintf(w, "Imported %d stubs\n", len(created))
			for _, st := range created {
				fmt.Fprintf(w, "  %s  %s\n", st.ID, st.Name)
			}
		})
	},
}

var stubSyncCmd = &cobra.Command{
	Use:   "sync <id>",
	Short: "Push one stub to one instance",
	Long: `Push one stub to one instance. A stub without a remote id is created on
the instance and the assigned id is stored; otherwise the remote mapping is
updated in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceID := stubFlagVals.instance
		var st *stub.Stub
		err := withStore(func(s store.Store) error {
			o := newOrchestrator(s, log)
			if err := o.SyncOne(cmd.Context(), args[0], instanceID); err != nil {
				return err
			}
			var err error
			st, err = s.Stubs().Get(cmd.Context(), args[0])
			return err
		})
		if err != nil {
			return syncFailure(cmd, err)
		}
		out := syncOutput{StubID: st.ID, InstanceID: instanceID, RemoteID: remoteLabel(st), Version: st.Version}
		return printResult(cmd, out, func(w io.Writer) {
			fmt.Fprintf(w, "Synced stub %s to instance %s (remote id %s, version %d)\n",
				out.StubID, out.InstanceID, out.RemoteID, out.Version)
		})
	},
}

var stubRecoverCmd = &cobra.Command{
	Use:   "recover <id>",
	Short: "Recover the remote id of a partially synced stub",
	Long: `Recover a stub whose mapping was created on the instance but whose remote
id could not be stored. The instance's mappings are searched for the one
tagged with this stub and its id is stored locally.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceID := stubFlagVals.instance
		var remoteID string
		err := withStore(func(s store.Store) (err error) {
			remoteID, err = newOrchestrator(s, log).Recover(cmd.Context(), args[0], instanceID)
			return err
		})
		if err != nil {
			return syncFailure(cmd, err)
		}
		out := syncOutput{StubID: args[0], InstanceID: instanceID, RemoteID: remoteID}
		return printResult(cmd, out, func(w io.Writer) {
			fmt.Fprintf(w, "Stub %s is linked to remote mapping %s\n", out.StubID, out.RemoteID)
		})
	},
}

// syncOutput is the JSON result of stub sync and stub recover.
type syncOutput struct {
	StubID     string `json:"stubId"`
	InstanceID string `json:"instanceId"`
	RemoteID   string `json:"remoteId"`
	Version    int    `json:"version,omitempty"`
}

// syncFailure explains a failed SyncOne or Recover, including what to do
// about a partial reconciliation.
func syncFailure(cmd *cobra.Command, err error) error {
	var se *syncer.SyncError
	if errors.As(err, &se) && se.Kind == syncer.KindPartialReconciliation {
		if se.RemoteID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(),
				"Mapping %s was created on instance %s but its id was not stored.\n", se.RemoteID, se.InstanceID)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(),
				"Instance %s accepted the mapping but did not confirm its id.\n", se.InstanceID)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Run: wmjp stub recover %s --instance %s\n", se.StubID, se.InstanceID)
	}
	return err
}

func newOrchestrator(s store.Store, logger *slog.Logger, extra ...syncer.Option) *syncer.Orchestrator {
	opts := []syncer.Option{
		syncer.WithWorkers(cfg.Workers),
		syncer.WithTimeout(cfg.SyncTimeout),
		syncer.WithLogger(logger),
	}
	return syncer.New(s, append(opts, extra...)...)
}

// readMapping returns the mapping from --file or --mapping with its name,
// or a nil mapping if neither is set.
func readMapping(path, inline string) (json.RawMessage, string, error) {
	switch {
	case path != "" && inline != "":
		return nil, "", errors.New("--file and --mapping are mutually exclusive")
	case inline != "":
		var m struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal([]byte(inline), &m)
		return json.RawMessage(inline), m.Name, nil
	case path != "":
		docs, err := stub.LoadFile(path)
		if err != nil {
			return nil, "", err
		}
		if len(docs) != 1 {
			return nil, "", fmt.Errorf("%s holds %d mappings; use stub import for several", path, len(docs))
		}
		return docs[0].Mapping, docs[0].Name, nil
	}
	return nil, "", nil
}

func requestOf(mapping json.RawMessage) json.RawMessage {
	var m struct {
		Request json.RawMessage `json:"request"`
	}
	_ = json.Unmarshal(mapping, &m)
	return m.Request
}

// remoteLabel is the stub's remote id, or "-" when it was never synced.
func remoteLabel(st *stub.Stub) string {
	if ref, ok := st.Ref().(stub.Synced); ok {
		return ref.RemoteID
	}
	return "-"
}

func init() {
	f := &stubFlagVals

	for _, c := range []*cobra.Command{stubAddCmd, stubListCmd, stubImportCmd} {
		c.Flags().StringVarP(&f.project, "project", "p", "", "Project id")
		_ = c.MarkFlagRequired("project")
	}
	for _, c := range []*cobra.Command{stubSyncCmd, stubRecoverCmd} {
		c.Flags().StringVarP(&f.instance, "instance", "i", "", "Instance id")
		_ = c.MarkFlagRequired("instance")
	}
	stubDeleteCmd.Flags().StringVarP(&f.instance, "instance", "i", "", "Also remove the stub's mapping from this instance")
	for _, c := range []*cobra.Command{stubAddCmd, stubUpdateCmd} {
		c.Flags().StringVarP(&f.name, "name", "n", "", "Stub name")
		c.Flags().StringVarP(&f.description, "description", "d", "", "Stub description")
		c.Flags().StringVarP(&f.file, "file", "f", "", "Read the mapping from a JSON or YAML file")
		c.Flags().StringVar(&f.mapping, "mapping", "", "Mapping as inline JSON")
	}
	stubAddCmd.Flags().BoolVar(&f.inactive, "inactive", false, "Create the stub as inactive")
	stubImportCmd.Flags().BoolVar(&f.inactive, "inactive", false, "Create the stubs as inactive")
	stubListCmd.Flags().BoolVar(&f.activeOnly, "active", false, "Only list active stubs")

	stubCmd.AddCommand(
		stubAddCmd, stubListCmd, stubShowCmd, stubUpdateCmd,
		stubEnableCmd, stubDisableCmd, stubDeleteCmd,
		stubImportCmd, stubSyncCmd, stubRecoverCmd,
	)
	rootCmd.AddCommand(stubCmd)
}
