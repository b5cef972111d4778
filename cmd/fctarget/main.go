package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"fctarget/adapters/report"
	"fctarget/app"
	"fctarget/domain/cluster"
	"fctarget/domain/core"
	clusterx "fctarget/internal/cluster"
	"fctarget/internal/config"
	"fctarget/internal/container"
	"fctarget/internal/coords"
	"fctarget/ports"
)

var configFile string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "fctarget",
		Short:        "Permutation-thresholded seed-to-target functional connectivity targeting",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "YAML configuration file")

	rootCmd.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newRunsCmd(),
		newReportCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.LoadFile(configFile)
}

func newRunCmd() *cobra.Command {
	var (
		prefix       string
		permutations int
		alpha        float64
		minVoxels    int
		nn           int
		bisided      bool
		centerMode   string
		policy       string
		seed         int64
		native       bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "run [time-series] [seed-mask] [target-mask]",
		Short: "Locate the FC target cluster and print its coordinate",
		Long: `Correlate the mean seed time series with every target voxel, build a
permutation null of the peak |r|, threshold the observed map two-sided and
report the center of mass of the surviving clusters.

Datasets are NIfTI-1 files (.nii or .nii.gz) resolved under inputs.root.

Example: fctarget run func_preproc sgACC_mask DLPFC_mask --permutations 1000 --alpha 0.05 --seed 42`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			t := &cfg.Targeting
			flags := cmd.Flags()
			if flags.Changed("permutations") {
				t.Permutations = permutations
			}
			if flags.Changed("alpha") {
				t.Alpha = alpha
			}
			if flags.Changed("min-voxels") {
				t.MinClusterVoxels = minVoxels
			}
			if flags.Changed("nn") {
				t.Connectivity = nn
			}
			if flags.Changed("bisided") {
				t.Bisided = bisided
			}
			if flags.Changed("center-mode") {
				t.CenterMode = centerMode
			}
			if flags.Changed("select") {
				t.SelectionPolicy = policy
			}
			if flags.Changed("seed") {
				t.Seed = seed
			}

			mode, err := cluster.ParseCenterMode(t.CenterMode)
			if err != nil {
				return err
			}
			sel, err := cluster.ParseSelectionPolicy(t.SelectionPolicy)
			if err != nil {
				return err
			}

			c, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			res, err := c.Service.Run(cmd.Context(), app.Request{
				TimeSeries:   args[0],
				SeedMask:     args[1],
				TargetMask:   args[2],
				OutputPrefix: prefix,
				Permutations: t.Permutations,
				Alpha:        t.Alpha,
				Cluster: clusterx.Options{
					MinVoxels:    t.MinClusterVoxels,
					Connectivity: cluster.Connectivity(t.Connectivity),
					Bisided:      t.Bisided,
					CenterMode:   mode,
				},
				SelectionPolicy:   sel,
				NativeCoordinates: native,
				Seed:              t.Seed,
			})
			if err != nil {
				return err
			}
			for _, se := range res.SinkErrors {
				fmt.Fprintf(os.Stderr, "warning: %v\n", se)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res.Report)
			}
			printReport(cmd, res.Report)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Output prefix for report files")
	cmd.Flags().IntVar(&permutations, "permutations", 1000, "Number of permutation trials")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "Two-sided significance level")
	cmd.Flags().IntVar(&minVoxels, "min-voxels", 5, "Minimum cluster size in voxels")
	cmd.Flags().IntVar(&nn, "nn", 1, "Connectivity: 1 faces, 2 edges, 3 corners")
	cmd.Flags().BoolVar(&bisided, "bisided", false, "Cluster positive and negative voxels separately")
	cmd.Flags().StringVar(&centerMode, "center-mode", "unweighted", "Center of mass: unweighted|abs_weighted")
	cmd.Flags().StringVar(&policy, "select", "largest", "Target cluster: largest|peak")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 derives one from the clock)")
	cmd.Flags().BoolVar(&native, "native", false, "Report coordinates in map space without flipping x and y")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, r *ports.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:        %s\n", r.RunID)
	fmt.Fprintf(out, "status:     %s\n", r.Status)
	fmt.Fprintf(out, "trials:     %d of %d (%s)\n", r.TrialsCompleted(), r.Parameters.Permutations, r.Skipped)
	fmt.Fprintf(out, "threshold:  |r| > %.4f (alpha %g, seed %d)\n", r.Threshold.Value, r.Threshold.Alpha, r.Parameters.Seed)
	if r.Selected == nil {
		fmt.Fprintln(out, "no cluster survived the threshold")
		return
	}
	fmt.Fprintf(out, "target:     %s\n", coords.Format(r.Selected.Target))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nRANK\tSIZE\tPEAK\tSIGN\tTARGET")
	for _, tc := range r.Clusters {
		fmt.Fprintf(w, "%d\t%d\t%.4f\t%s\t%s\n", tc.Cluster.Rank, tc.Cluster.Size, tc.Cluster.Peak, tc.Cluster.Sign, coords.Format(tc.Target))
	}
	w.Flush()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", args[0])
			}
			data, err := config.Default().Marshal()
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (defaults, file, environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())
			if c.Reports == nil {
				return fmt.Errorf("no report database configured")
			}

			records, err := c.Reports.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tTHRESHOLD\tTRIALS\tCLUSTERS\tCREATED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%.4f\t%d/%d\t%d\t%s\n", rec.RunID, rec.Status, rec.Threshold,
					rec.TrialsCompleted, rec.TrialsRequested, rec.ClusterCount, rec.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

func newReportCmd() *cobra.Command {
	var (
		dir      string
		withHTML bool
	)

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Re-render the workbook and markdown reports of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())
			if c.Reports == nil {
				return fmt.Errorf("no report database configured")
			}

			id, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			_, r, err := c.Reports.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Reports.Dir
			}
			fan := report.NewFanout(report.NewXLSXWriter(dir), report.NewMarkdownWriter(dir, withHTML))
			if err := fan.Publish(cmd.Context(), r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rendered %s into %s\n", r.RunID, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default reports.dir)")
	cmd.Flags().BoolVar(&withHTML, "html", true, "Also render HTML")
	return cmd
}
