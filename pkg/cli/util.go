package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/ykagano/wiremock-jp/pkg/cli/internal/output"
)

// errNotInteractive is returned when a confirmation is needed but stdin is
// not a terminal.
var errNotInteractive = errors.New("confirmation required: rerun with --yes")

// confirm asks a yes/no question unless assumeYes is set.
func confirm(assumeYes bool, title string) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !isInteractive() {
		return false, errNotInteractive
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func isInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// queryJSON evaluates a JSONPath expression against the JSON form of v.
func queryJSON(v any, query string) ([]any, error) {
	x, err := jp.ParseString(query)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", query, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	data, err := oj.Parse(raw)
	if err != nil {
		return nil, err
	}
	return x.Get(data), nil
}

// printQuery writes query results. Text mode prints strings bare and
// everything else as compact JSON, one result per line.
func printQuery(cmd *cobra.Command, results []any) error {
	if results == nil {
		results = []any{}
	}
	if jsonOutput {
		return output.JSON(cmd.OutOrStdout(), results)
	}
	w := cmd.OutOrStdout()
	for _, r := range results {
		if s, ok := r.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		fmt.Fprintln(w, oj.JSON(r, &oj.Options{Sort: true}))
	}
	return nil
}

// requestLine extracts method and URL (or URL pattern) from a raw request
// matcher for display.
func requestLine(raw json.RawMessage) (method, url string) {
	var req struct {
		Method         string `json:"method"`
		URL            string `json:"url"`
		URLPath        string `json:"urlPath"`
		URLPattern     string `json:"urlPattern"`
		URLPathPattern string `json:"urlPathPattern"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &req) != nil {
		return "-", "-"
	}
	method = req.Method
	if method == "" {
		method = "ANY"
	}
	for _, u := range []string{req.URL, req.URLPath, req.URLPattern, req.URLPathPattern} {
		if u != "" {
			return method, u
		}
	}
	return method, "-"
}
