package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cityscout/events-cli/internal/model"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the crawl source list",
}

// sourceSeed is one entry of the YAML seed file.
type sourceSeed struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Kind        string `yaml:"kind"`
	Reliability int    `yaml:"reliability"`
	Enabled     *bool  `yaml:"enabled"`
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import <seed-file>",
	Short: "Import sources from a YAML seed file (upserts by URL)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read seed file")
		}

		var seeds []sourceSeed
		if err := yaml.Unmarshal(data, &seeds); err != nil {
			return eris.Wrap(err, "parse seed file")
		}

		sources, err := seedsToSources(seeds)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, src := range sources {
			saved, err := st.UpsertSource(ctx, src)
			if err != nil {
				return eris.Wrapf(err, "upsert source %s", src.URL)
			}
			zap.L().Info("source upserted",
				zap.String("id", saved.ID),
				zap.String("name", saved.Name),
				zap.String("kind", string(saved.Kind)),
			)
		}

		fmt.Fprintf(os.Stderr, "Imported %d sources.\n", len(sources))
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled sources in crawl order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sources, err := st.ListEnabledSources(ctx)
		if err != nil {
			return eris.Wrap(err, "sources list")
		}

		for _, src := range sources {
			fmt.Fprintf(os.Stdout, "%-10s %3d  %-30s %s\n", src.Kind, src.Reliability, src.Name, src.URL)
		}
		return nil
	},
}

// seedsToSources validates the seed entries and converts them to model
// sources. Validation is all-or-nothing: a bad entry fails the whole
// import before anything is written.
func seedsToSources(seeds []sourceSeed) ([]model.Source, error) {
	kinds := make(map[model.SourceKind]bool)
	for _, k := range model.AllSourceKinds() {
		kinds[k] = true
	}

	var out []model.Source
	for i, s := range seeds {
		if s.URL == "" {
			return nil, eris.Errorf("seed %d: url is required", i)
		}
		if s.Name == "" {
			return nil, eris.Errorf("seed %d (%s): name is required", i, s.URL)
		}
		kind := model.SourceKind(s.Kind)
		if !kinds[kind] {
			return nil, eris.Errorf("seed %d (%s): unknown kind %q", i, s.URL, s.Kind)
		}
		reliability := s.Reliability
		if reliability == 0 {
			reliability = 50
		}
		if reliability < 0 || reliability > 100 {
			return nil, eris.Errorf("seed %d (%s): reliability must be in [0,100]", i, s.URL)
		}
		enabled := true
		if s.Enabled != nil {
			enabled = *s.Enabled
		}
		out = append(out, model.Source{
			Name:        s.Name,
			URL:         s.URL,
			Kind:        kind,
			Reliability: reliability,
			Enabled:     enabled,
		})
	}
	return out, nil
}

func init() {
	sourcesCmd.AddCommand(sourcesImportCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	rootCmd.AddCommand(sourcesCmd)
}
