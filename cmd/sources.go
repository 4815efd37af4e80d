package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the source registry",
	Long:  "Commands for listing and registering county auction portals.",
}

// -- sources list --

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		enabledOnly, _ := cmd.Flags().GetBool("enabled")
		sources, err := st.ListSources(ctx, enabledOnly)
		if err != nil {
			return eris.Wrap(err, "sources list")
		}

		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources registered.")
			return nil
		}

		formatSources(os.Stdout, sources)
		return nil
	},
}

// -- sources add --

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a single source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		platform, _ := cmd.Flags().GetString("platform")
		name, _ := cmd.Flags().GetString("name")
		url, _ := cmd.Flags().GetString("url")
		enabled, _ := cmd.Flags().GetBool("enabled")
		if platform == "" || name == "" || url == "" {
			return eris.New("--platform, --name, and --url are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		src, err := st.CreateSource(ctx, model.Source{
			Platform:  platform,
			Name:      name,
			PortalURL: url,
			Enabled:   enabled,
		})
		if err != nil {
			return eris.Wrap(err, "sources add")
		}

		fmt.Printf("Registered %s (id=%d)\n", src.TriggerName(), src.ID)
		return nil
	},
}

// -- sources import --

// sourceFile is the YAML shape consumed by `sources import`.
type sourceFile struct {
	Sources []struct {
		Platform  string `yaml:"platform"`
		Name      string `yaml:"name"`
		PortalURL string `yaml:"portal_url"`
		Enabled   *bool  `yaml:"enabled"`
	} `yaml:"sources"`
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Register sources in bulk from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "sources import: read file")
		}

		var file sourceFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return eris.Wrap(err, "sources import: parse yaml")
		}
		if len(file.Sources) == 0 {
			return eris.New("sources import: file defines no sources")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		for i, s := range file.Sources {
			if s.Platform == "" || s.Name == "" || s.PortalURL == "" {
				return eris.Errorf("sources import: entry %d missing platform, name, or portal_url", i)
			}
			enabled := true
			if s.Enabled != nil {
				enabled = *s.Enabled
			}
			src, err := st.CreateSource(ctx, model.Source{
				Platform:  s.Platform,
				Name:      s.Name,
				PortalURL: s.PortalURL,
				Enabled:   enabled,
			})
			if err != nil {
				return eris.Wrapf(err, "sources import: entry %d", i)
			}
			fmt.Printf("Registered %s (id=%d)\n", src.TriggerName(), src.ID)
		}
		return nil
	},
}

func init() {
	sourcesListCmd.Flags().Bool("enabled", false, "show enabled sources only")

	sourcesAddCmd.Flags().String("platform", "", "portal platform, e.g. RealForeclose")
	sourcesAddCmd.Flags().String("name", "", "source name, e.g. Essex")
	sourcesAddCmd.Flags().String("url", "", "portal URL")
	sourcesAddCmd.Flags().Bool("enabled", true, "schedule this source")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesImportCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// formatSources writes a tabular list of sources to w.
func formatSources(out io.Writer, sources []model.Source) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPLATFORM\tNAME\tENABLED\tPORTAL")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t-------\t------")
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", s.ID, s.Platform, s.Name, s.Enabled, s.PortalURL)
	}
	_ = w.Flush()
}
