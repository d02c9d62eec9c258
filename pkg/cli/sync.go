package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
)

// syncFlags holds the flags of the sync command.
type syncFlags struct {
	project  string
	instance string
	workers  int
}

var syncFlagVals syncFlags

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push every active stub of a project",
	Long: `Push every active stub of a project to one instance (--instance) or to
every active instance of the project. Stubs are synced independently: one
failure does not stop the others. The exit status is 1 if any stub failed.`,
	Args: cobra.NoArgs,
	Example: `  wmjp sync --project <id>
  wmjp sync --project <id> --instance <id> --workers 8
  wmjp sync --project <id> --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := &syncFlagVals
		var results []syncer.InstanceResult
		err := withStore(func(s store.Store) error {
			o := newOrchestrator(s, log)
			if f.instance == "" {
				var err error
				results, err = o.SyncProject(cmd.Context(), f.project)
				return err
			}
			res, err := o.SyncAll(cmd.Context(), f.project, f.instance)
			if err != nil {
				return err
			}
			inst, err := s.Instances().Get(cmd.Context(), f.instance)
			if err != nil {
				return err
			}
			results = []syncer.InstanceResult{{Instance: inst, Result: res}}
			return nil
		})
		if err != nil {
			return err
		}

		out := newSyncReport(results)
		if err := printResult(cmd, out, func(w io.Writer) { out.write(w) }); err != nil {
			return err
		}
		if !out.OK() {
			return errSilent
		}
		return nil
	},
}

// syncReport is the output of the sync command.
type syncReport struct {
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Results   []syncer.InstanceResult `json:"results"`
}

func newSyncReport(results []syncer.InstanceResult) *syncReport {
	r := &syncReport{Results: results}
	if r.Results == nil {
		r.Results = []syncer.InstanceResult{}
	}
	for _, ir := range results {
		r.Succeeded += ir.Result.Succeeded
		r.Failed += ir.Result.Failed + len(ir.Result.Pending)
	}
	return r
}

// OK reports whether every stub reached every instance.
func (r *syncReport) OK() bool {
	for _, ir := range r.Results {
		if !ir.Result.OK() {
			return false
		}
	}
	return true
}

func (r *syncReport) write(w io.Writer) {
	if len(r.Results) == 0 {
		fmt.Fprintln(w, "No active instances")
		return
	}
	for _, ir := range r.Results {
		fmt.Fprintf(w, "Instance %s (%s): %s\n", ir.Instance.Name, ir.Instance.ID, ir.Result.Summary())
		for _, fl := range ir.Result.Failures {
			fmt.Fprintf(w, "  %s [%s]\n", fl, fl.Kind)
		}
		for _, id := range ir.Result.Pending {
			fmt.Fprintf(w, "  Stub %s: not finished\n", id)
		}
	}
	fmt.Fprintf(w, "Total: %d succeeded, %d failed\n", r.Succeeded, r.Failed)
}

func init() {
	f := &syncFlagVals
	syncCmd.Flags().StringVarP(&f.project, "project", "p", "", "Project id")
	syncCmd.Flags().StringVarP(&f.instance, "instance", "i", "", "Only sync to this instance")
	syncCmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Stubs synced in parallel per instance")
	_ = syncCmd.MarkFlagRequired("project")

	rootCmd.AddCommand(syncCmd)
}
