package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fennel/internal/app"
	"github.com/Ramsey-B/fennel/internal/handlers"
	"github.com/Ramsey-B/fennel/internal/services/mockdata"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/utils"
)

const (
	ImportModeReconcile = "reconcile"
	ImportModeCreate    = "create"
)

type ImportOptions struct {
	SpaceID    int64
	TemplateID int64
	Operator   string
	File       string
	Mode       string
}

// SeedItem mirrors one mock data item of the HTTP body.
type SeedItem struct {
	ID        *int64 `yaml:"id"`
	Name      string `yaml:"name"`
	Data      any    `yaml:"data"`
	IsDefault bool   `yaml:"is_default"`
}

// UnmarshalYAML rejects an explicit null id so it is never read as a new item.
func (s *SeedItem) UnmarshalYAML(value *yaml.Node) error {
	type plain SeedItem
	if err := value.Decode((*plain)(s)); err != nil {
		return err
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "id" && value.Content[i+1].ShortTag() == "!!null" {
			return models.ErrNullMockDataID
		}
	}
	return nil
}

type Seed struct {
	MockData map[string][]SeedItem `yaml:"mock_data"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a template's mock data from a YAML seed file",
		Long: `Load a template's mock data from a YAML seed file.

In reconcile mode the template ends up holding exactly the seeded items;
in create mode the seeded items are added and nothing is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.SpaceID, "space", 0, "space id")
	cmd.Flags().Int64Var(&opts.TemplateID, "template", 0, "template id")
	cmd.Flags().StringVar(&opts.Operator, "operator", "", "operator recorded on the written records")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "seed file (- for stdin)")
	cmd.Flags().StringVar(&opts.Mode, "mode", ImportModeReconcile, "reconcile or create")
	_ = cmd.MarkFlagRequired("space")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("operator")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, rootOpts *RootOptions, opts *ImportOptions) error {
	if opts.Mode != ImportModeReconcile && opts.Mode != ImportModeCreate {
		return fmt.Errorf("invalid mode %q: must be %s or %s", opts.Mode, ImportModeReconcile, ImportModeCreate)
	}

	var in io.Reader = cmd.InOrStdin()
	if opts.File != "-" {
		f, err := os.Open(opts.File)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	desired, err := ParseSeed(in)
	if err != nil {
		return fmt.Errorf("parse %s: %w", opts.File, err)
	}

	cfg, logger, sync, err := setup(rootOpts)
	if err != nil {
		return err
	}
	defer sync()

	ctx := cmd.Context()
	a := app.New(cfg, logger, app.Options{})
	if err := a.Start(ctx); err != nil {
		return errors.Join(err, a.Stop(ctx))
	}
	defer a.Stop(ctx)

	scope := models.TemplateScope{SpaceID: opts.SpaceID, TemplateID: opts.TemplateID}
	write := a.Services().MockData.Reconcile
	if opts.Mode == ImportModeCreate {
		write = a.Services().MockData.BatchCreate
	}

	result, err := write(ctx, opts.Operator, scope, desired)
	if err != nil {
		return err
	}

	return printSummary(cmd.OutOrStdout(), result)
}

func printSummary(w io.Writer, result mockdata.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"summary": result.Summary,
		"total":   len(result.Records),
	})
}

// ParseSeed reads a YAML seed into the desired mock data of a template. The
// seed must name mock_data explicitly; `mock_data: {}` is the empty state.
// Items follow the same rules as the HTTP body.
func ParseSeed(r io.Reader) (models.DesiredMockData, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	var input map[string][]models.MockDataInput
	if seed.MockData != nil {
		input = make(map[string][]models.MockDataInput, len(seed.MockData))
	}
	for nodeID, items := range seed.MockData {
		converted := make([]models.MockDataInput, len(items))
		for i, item := range items {
			converted[i] = models.MockDataInput{
				ID:        item.ID,
				Name:      item.Name,
				IsDefault: item.IsDefault,
			}
			if item.Data == nil {
				continue
			}
			data, err := json.Marshal(item.Data)
			if err != nil {
				return nil, fmt.Errorf("node %s item %d: data is not representable as JSON: %w", nodeID, i, err)
			}
			converted[i].Data = data
		}
		input[nodeID] = converted
	}

	req, err := utils.Validate(handlers.MockDataRequest{MockData: input})
	if err != nil {
		return nil, err
	}

	return models.ToDesired(req.MockData), nil
}
