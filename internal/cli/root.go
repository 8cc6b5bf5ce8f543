// Package cli implements insightsctl, the operator command line.
package cli

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/lueurxax/insights-engine/internal/api"
	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/factors"
)

const (
	defaultAPIURL  = "http://localhost:8080"
	defaultTimeout = 6 * time.Minute
	envAPIURL      = "INSIGHTS_API_URL"

	outputJSON = "json"
	outputYAML = "yaml"
)

// Admin is the direct database access used by operator commands.
type Admin interface {
	Migrate(ctx context.Context) error
	UpsertFactorDefinitions(ctx context.Context, defs []domain.FactorDefinition) error
	UpsertIndustry(ctx context.Context, ind domain.Industry) error
	UpsertSubject(ctx context.Context, s *domain.Subject) (*domain.Subject, error)
	SetFinancialData(ctx context.Context, key string, data stdjson.RawMessage) error
}

// AdminOpener connects to the database. The returned func releases it.
type AdminOpener func(ctx context.Context) (Admin, func(), error)

type rootOptions struct {
	apiURL  string
	timeout time.Duration
	output  string
	open    AdminOpener
}

// NewRootCmd builds the insightsctl command tree.
func NewRootCmd(open AdminOpener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:           "insightsctl",
		Short:         "Operate the insights report engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.output {
			case outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("%w: unknown output format %q", apperrors.ErrValidation, opts.output)
			}
		},
	}

	apiURL := os.Getenv(envAPIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api", apiURL, "insights server base URL (env "+envAPIURL+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputJSON, "output format: json or yaml")

	root.AddCommand(
		newMigrateCmd(opts),
		newFactorsCmd(opts),
		newIndustriesCmd(opts),
		newSubjectsCmd(opts),
		newGenerateCmd(opts),
		newReportCmd(opts),
		newScoresCmd(opts),
		newInvocationCmd(opts),
	)

	return root
}

func (o *rootOptions) client() *Client {
	return NewClient(strings.TrimRight(o.apiURL, "/"), o.timeout)
}

func (o *rootOptions) withAdmin(ctx context.Context, fn func(Admin) error) error {
	if o.open == nil {
		return fmt.Errorf("%w: database access is not configured", apperrors.ErrValidation)
	}

	admin, release, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn(admin)
}

// print renders v in the selected format.
func (o *rootOptions) print(w io.Writer, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	if o.output == outputJSON {
		_, err = fmt.Fprintln(w, string(raw))

		return err
	}

	// Round trip through JSON so YAML keys follow the JSON field names.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}

	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	_, err = w.Write(out)

	return err
}

func newMigrateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withAdmin(cmd.Context(), func(a Admin) error {
				if err := a.Migrate(cmd.Context()); err != nil {
					return err
				}

				_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")

				return err
			})
		},
	}
}

func newFactorsCmd(o *rootOptions) *cobra.Command {
	factorsCmd := &cobra.Command{
		Use:   "factors",
		Short: "Manage factor definitions",
	}

	var file string

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Upsert factor definitions from the built-in set or a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := loadFactors(file)
			if err != nil {
				return err
			}

			return o.withAdmin(cmd.Context(), func(a Admin) error {
				if err := a.UpsertFactorDefinitions(cmd.Context(), defs); err != nil {
					return err
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "seeded %d factor definitions\n", len(defs))

				return err
			})
		},
	}
	seed.Flags().StringVarP(&file, "file", "f", "", "YAML file with factor definitions (default: built-in)")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print factor definitions without touching the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := loadFactors(file)
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), factorRows(defs))
		},
	}
	list.Flags().StringVarP(&file, "file", "f", "", "YAML file with factor definitions (default: built-in)")

	factorsCmd.AddCommand(seed, list)

	return factorsCmd
}

type factorRow struct {
	Category    string `json:"category"`
	Key         string `json:"factorAnalysisKey"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func factorRows(defs []domain.FactorDefinition) []factorRow {
	out := make([]factorRow, 0, len(defs))
	for _, d := range defs {
		out = append(out, factorRow{Category: string(d.Category), Key: d.Key, Title: d.Title, Description: d.Description})
	}

	return out
}

func loadFactors(file string) ([]domain.FactorDefinition, error) {
	if file == "" {
		return factors.Builtin()
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read factors file: %w", err)
	}

	return factors.Parse(raw)
}

func newIndustriesCmd(o *rootOptions) *cobra.Command {
	industries := &cobra.Command{
		Use:   "industries",
		Short: "Manage reference industries",
	}

	var name, summary string

	add := &cobra.Command{
		Use:   "add <key>",
		Short: "Create or update an industry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ind := domain.Industry{Key: args[0], Name: name, Summary: summary}
			if ind.Name == "" {
				ind.Name = ind.Key
			}

			return o.withAdmin(cmd.Context(), func(a Admin) error {
				if err := a.UpsertIndustry(cmd.Context(), ind); err != nil {
					return err
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "industry %s saved\n", ind.Key)

				return err
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&summary, "summary", "", "short industry summary")

	industries.AddCommand(add)

	return industries
}

func newSubjectsCmd(o *rootOptions) *cobra.Command {
	subjects := &cobra.Command{
		Use:   "subjects",
		Short: "Manage subjects",
	}

	var kind, name, exchange, industry string

	add := &cobra.Command{
		Use:   "add <key>",
		Short: "Create or update a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &domain.Subject{
				Key:         strings.TrimSpace(args[0]),
				Kind:        domain.SubjectKind(kind),
				Name:        name,
				Exchange:    exchange,
				IndustryKey: industry,
			}
			if s.Name == "" {
				s.Name = s.Key
			}

			return o.withAdmin(cmd.Context(), func(a Admin) error {
				saved, err := a.UpsertSubject(cmd.Context(), s)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "subject %s saved (%s)\n", saved.Key, saved.ID)

				return err
			})
		},
	}
	add.Flags().StringVar(&kind, "kind", string(domain.SubjectKindTicker), "ticker, project or case_study")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&exchange, "exchange", "", "listing exchange")
	add.Flags().StringVar(&industry, "industry", "", "industry key")

	data := &cobra.Command{
		Use:   "data <key> <file|->",
		Short: "Store financial statement data for a subject; the JSON literal null clears it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}

			payload, err := financialPayload(raw)
			if err != nil {
				return err
			}

			return o.withAdmin(cmd.Context(), func(a Admin) error {
				if err := a.SetFinancialData(cmd.Context(), args[0], payload); err != nil {
					return err
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "financial data for %s updated\n", args[0])

				return err
			})
		},
	}

	subjects.AddCommand(add, data)

	return subjects
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		return raw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return raw, nil
}

// financialPayload validates statement data. null yields a nil payload.
func financialPayload(raw []byte) (stdjson.RawMessage, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: financial data is not valid JSON", apperrors.ErrValidation)
	}

	parsed := gjson.ParseBytes(raw)

	switch {
	case parsed.Type == gjson.Null:
		return nil, nil
	case !parsed.IsObject():
		return nil, fmt.Errorf("%w: financial data must be a JSON object", apperrors.ErrValidation)
	default:
		return stdjson.RawMessage(strings.TrimSpace(string(raw))), nil
	}
}

func newGenerateCmd(o *rootOptions) *cobra.Command {
	var body api.GenerateRequest

	cmd := &cobra.Command{
		Use:   "generate <subject> <category>",
		Short: "(Re)generate one report through the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ack, err := o.client().Generate(cmd.Context(), args[0], args[1], body)
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), ack)
		},
	}

	cmd.Flags().StringVar(&body.InvestorKey, "investor", "", "investor key for InvestorAnalysis")
	cmd.Flags().StringVar(&body.Model, "model", "", "model override")
	cmd.Flags().StringVar(&body.Provider, "provider", "", "pin a provider: webhook, openai, anthropic or mock")
	cmd.Flags().BoolVar(&body.Async, "async", false, "queue the generation instead of waiting")

	return cmd
}

func newReportCmd(o *rootOptions) *cobra.Command {
	var investor string

	cmd := &cobra.Command{
		Use:   "report <subject> <category>",
		Short: "Show a stored report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := o.client().Report(cmd.Context(), args[0], args[1], investor)
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), view)
		},
	}

	cmd.Flags().StringVar(&investor, "investor", "", "investor key for InvestorAnalysis")

	return cmd
}

func newScoresCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scores <subject>",
		Short: "Show category scores and the cached score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := o.client().Scores(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), view)
		},
	}
}

func newInvocationCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invocation <id>",
		Short: "Show the status of a generation by correlation id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := o.client().Invocation(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return o.print(cmd.OutOrStdout(), inv)
		},
	}
}
