package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contract-relay/internal/client"
	"contract-relay/internal/contract"
	"contract-relay/internal/models"
)

// errCheckFailed makes the process exit non-zero without printing twice.
var errCheckFailed = errors.New("contract check failed")

var (
	method       string
	bodyFile     string
	contractFile string
	responseFile string
	strict       bool
	remote       bool
)

var callCmd = &cobra.Command{
	Use:   "call <url>",
	Short: "Call an API and print its JSON response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		form, err := newForm(args[0])
		if err != nil {
			return err
		}
		if err := form.CallAPI(cmd.Context()); err != nil {
			logger.Debug("call failed", zap.Error(err))
			fmt.Fprintln(cmd.OutOrStdout(), form.RenderResponse())
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), form.RenderResponse())
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [url]",
	Short: "Check a response against a contract without the model",
	Long: `check compares a response with a contract using the structural checker.
The response comes from --response, or from calling [url]. With --remote the
check runs on the relay instead of locally.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if contractFile == "" {
			return errors.New("--contract is required")
		}
		rawContract, err := client.LoadDocument(contractFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		response, err := loadResponse(ctx, cmd, args)
		if err != nil {
			return err
		}

		var pass bool
		var report, fingerprint string
		if remote {
			relay := client.NewRelayClient(serverURL, timeout)
			res, err := relay.Check(ctx, models.CheckContractRequest{
				APIResponse:      response,
				ExpectedContract: rawContract,
				Strict:           strict,
			})
			if err != nil {
				return err
			}
			pass, report, fingerprint = res.Pass, res.Report, res.Fingerprint
		} else {
			c, err := contract.Parse(rawContract)
			if err != nil {
				return fmt.Errorf("invalid contract: %w", err)
			}
			var value any
			if err := json.Unmarshal(response, &value); err != nil {
				return fmt.Errorf("invalid response JSON: %w", err)
			}
			d := contract.Check(c, value, contract.Options{Strict: strict})
			pass, report, fingerprint = d.Pass, contract.Format(d), contract.Fingerprint(c)
		}

		logger.Debug("contract checked", zap.String("fingerprint", fingerprint), zap.Bool("pass", pass))
		fmt.Fprint(cmd.OutOrStdout(), renderCheck(pass, report, plain))
		if !pass {
			return errCheckFailed
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [url]",
	Short: "Ask the relay's model to validate a response against a contract",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if contractFile == "" {
			return errors.New("--contract is required")
		}
		rawContract, err := client.LoadDocument(contractFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		endpoint := ""
		if len(args) == 1 {
			endpoint = args[0]
		}
		if endpoint == "" && responseFile == "" {
			return errors.New("give a URL to call or --response")
		}
		form, err := newForm(endpoint)
		if err != nil {
			return err
		}
		form.SetContract(string(rawContract))

		if responseFile != "" {
			response, err := client.LoadDocument(responseFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			form.SetResponse(response)
		} else if err := form.CallAPI(ctx); err != nil {
			logger.Warn("API call failed, validating the error object", zap.Error(err))
		}
		if form.Endpoint == "" {
			form.Endpoint = "(not provided)"
		}

		_, err = form.Validate(ctx)
		fmt.Fprint(cmd.OutOrStdout(), renderVerdict(form.RenderResult(), plain))
		return err
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage relay sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session and print its id and websocket token",
	RunE: func(cmd *cobra.Command, args []string) error {
		relay := client.NewRelayClient(serverURL, timeout)
		resp, err := relay.NewSession(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [id]",
	Short: "Forget a session's conversation on the relay",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := sessionID
		if len(args) == 1 {
			id = args[0]
		}
		relay := client.NewRelayClient(serverURL, timeout)
		if err := relay.EndSession(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s ended\n", id)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{callCmd, checkCmd, validateCmd} {
		c.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method for the API call")
		c.Flags().StringVar(&bodyFile, "body", "", "JSON or YAML request body file (POST, PUT, PATCH)")
	}
	for _, c := range []*cobra.Command{checkCmd, validateCmd} {
		c.Flags().StringVarP(&contractFile, "contract", "c", "", "contract file (JSON or YAML, - for stdin)")
		c.Flags().StringVarP(&responseFile, "response", "r", "", "use this response file instead of calling the API")
	}
	checkCmd.Flags().BoolVar(&strict, "strict", false, "fail on fields the contract does not declare")
	checkCmd.Flags().BoolVar(&remote, "remote", false, "run the check on the relay")

	sessionCmd.AddCommand(sessionNewCmd, sessionEndCmd)
}

func newForm(endpoint string) (*client.Form, error) {
	form := client.NewForm(client.NewFetcher(timeout), client.NewRelayClient(serverURL, timeout))
	form.SessionID = sessionID
	form.Endpoint = endpoint
	if err := form.SetMethod(method); err != nil {
		return nil, err
	}
	if bodyFile != "" {
		body, err := client.LoadDocument(bodyFile, os.Stdin)
		if err != nil {
			return nil, err
		}
		form.SetBody(string(body))
	}
	return form, nil
}

func loadResponse(ctx context.Context, cmd *cobra.Command, args []string) (json.RawMessage, error) {
	if responseFile != "" {
		return client.LoadDocument(responseFile, cmd.InOrStdin())
	}
	if len(args) == 0 {
		return nil, errors.New("give a URL to call or --response")
	}
	form, err := newForm(args[0])
	if err != nil {
		return nil, err
	}
	if err := form.CallAPI(ctx); err != nil {
		return nil, err
	}
	return form.Response(), nil
}
