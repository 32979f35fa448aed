package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/qverify/internal/client"
	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
	"github.com/wondertwin-ai/qverify/internal/verify"
)

type verifyOutput struct {
	verify.VerificationResult
	Status string   `json:"status"`
	Notes  []string `json:"notes,omitempty"`
}

func newVerifyCmd(a *app) *cobra.Command {
	var caseRef, responsePath, apiRoot string
	var status int
	var pageAware bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a saved response body against a case without sending a request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := loadCaseRef(caseRef)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(responsePath)
			if err != nil {
				return fmt.Errorf("reading response %s: %w", responsePath, err)
			}
			res, err := client.ParseResponse(status, raw)
			if err != nil {
				return err
			}

			opts := verify.Options{APIRoot: apiRoot, PageAwarePagination: pageAware}
			if !cmd.Flags().Changed("api-root") {
				if m, err := a.loadManifest(); err == nil {
					opts = verifyOptions(m)
				}
			}

			o := runner.Outcome{Case: tc, Result: res, Verification: verify.New(opts).Verify(tc, res)}
			out := verifyOutput{VerificationResult: o.Verification, Status: o.Status().String()}
			if s := o.StatusIssue(); s != "" {
				out.Notes = append(out.Notes, s)
			}

			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, string(b))

			if !o.Passed() {
				return a.failed()
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&caseRef, "case", "", "case as <file>:<id>")
	f.StringVar(&responsePath, "response", "", "file holding the response body")
	f.IntVar(&status, "status", 200, "HTTP status the response was returned with")
	f.StringVar(&apiRoot, "api-root", verify.DefaultAPIRoot, "API root path segment (default from manifest when present)")
	f.BoolVar(&pageAware, "page-aware", false, "use page-aware pagination counts")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}

// loadCaseRef resolves "<file>:<id>" to a case.
func loadCaseRef(ref string) (*testcase.TestCase, error) {
	idx := strings.LastIndex(ref, ":")
	if idx <= 0 {
		return nil, fmt.Errorf("case must be <file>:<id>, got %q", ref)
	}
	id, err := strconv.Atoi(ref[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("case must be <file>:<id>, got %q", ref)
	}
	s, err := testcase.LoadFile(ref[:idx])
	if err != nil {
		return nil, err
	}
	tc, ok := s.Case(id)
	if !ok {
		return nil, fmt.Errorf("no case with id %d in %s", id, ref[:idx])
	}
	return tc, nil
}
