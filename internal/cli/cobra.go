package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"panoforge/internal/config"
	"panoforge/internal/pipeline"
	"panoforge/internal/server"
	"panoforge/internal/storage"
	"panoforge/internal/watch"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, pipe *pipeline.Pipeline) *cobra.Command {
	root := NewRoot(pipe, cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "panoforge",
		Short: "Panoforge assembles panoramas from overlapping photos",
		Long: `Panoforge loads a directory of overlapping photos, stitches them into a
single panorama and writes the result. Stitching runs through Hugin when
available, with an ImageMagick fallback.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newStitchCmd(root))
	rootCmd.AddCommand(newScanCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newStitchCmd(root *Root) *cobra.Command {
	var (
		projection string
		blending   string
		quality    string
		output     string
		engine     string
	)

	cmd := &cobra.Command{
		Use:   "stitch <input_directory> [output_path]",
		Short: "Stitch a directory of photos into a panorama",
		Long: `Load every image in a directory and stitch the set into a panorama.
Supports various projections and blending modes for optimal results.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]

			if len(args) > 1 {
				output = args[1]
			}
			if output == "" {
				output = root.cfg.Paths.DefaultOutput
			}
			if output == "" {
				output = config.DefaultOutputName
			}

			job := pipeline.Job{
				ID:        newID("pano"),
				InputPath: input,
				Output:    output,
				Options: map[string]any{
					"projection": projection,
					"blending":   blending,
					"quality":    quality,
					"engine":     engine,
					"source":     "cli",
				},
			}
			return root.enqueueAndWait(cmd.Context(), job)
		},
	}

	cmd.Flags().StringVarP(&projection, "projection", "p", "", "projection mode (cylindrical|spherical|planar)")
	cmd.Flags().StringVarP(&blending, "blending", "b", "", "blending method (multiband|feather|none)")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "processing quality (fast|normal|high)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: "+config.DefaultOutputName+")")
	cmd.Flags().StringVar(&engine, "engine", "", "stitching engine (hugin|imagemagick), auto-detect if empty")

	return cmd
}

func newScanCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Scan a directory tree for candidate panorama sets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pipeline.Scan(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Images found: %d\n", len(res.Images))
			if len(res.Sets) == 0 {
				cmd.Println("No candidate panorama sets detected")
				return nil
			}
			cmd.Printf("Candidate sets:\n")
			for _, s := range res.Sets {
				cmd.Printf("  %-40s %3d images  (%s)\n", s.BasePath, s.Count, s.Detection)
			}
			return nil
		},
	}
	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr       string
		watchPaths []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server with run monitoring",
		Long: `Start an HTTP server exposing recent runs and a live result stream.
Optionally monitors hot folders and stitches each settled burst of new images.

Examples:
  # Basic server
  panoforge serve --addr :8080

  # Server with hot-folder stitching
  panoforge serve --addr :8080 --watch /photos/import`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			realPipeline, ok := root.pipeline.(*pipeline.Pipeline)
			if !ok {
				return fmt.Errorf("pipeline unavailable for server startup")
			}

			for _, dir := range watchPaths {
				w, err := watch.New(dir, watch.DefaultSettle, root.log, func(d string) {
					job := pipeline.Job{
						ID:        newID("hot"),
						InputPath: d,
						Output:    root.cfg.Paths.DefaultOutput,
						Options:   map[string]any{"source": "watch"},
					}
					if err := root.pipeline.Submit(job); err != nil {
						root.log.Error("hot-folder submit failed", "dir", d, "error", err)
					}
				})
				if err != nil {
					return fmt.Errorf("failed to create watcher for %s: %w", dir, err)
				}
				if err := w.Start(); err != nil {
					return fmt.Errorf("failed to watch %s: %w", dir, err)
				}
				defer w.Stop()
			}

			srv := server.NewServer(addr, root.store, realPipeline, root.log)
			root.log.Info("server ready",
				"addr", addr,
				"endpoints", []string{"/healthz", "/runs", "/stream", "/ws"},
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "server address (host:port)")
	cmd.Flags().StringSliceVar(&watchPaths, "watch", nil, "hot folders to monitor for new images")

	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate panoforge configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			cmd.Printf("Configuration:\n\n")
			cmd.Printf("Database Path: %s\n", cfg.Paths.DatabasePath)
			cmd.Printf("Default Output: %s\n", cfg.Paths.DefaultOutput)
			cmd.Printf("Temp Directory: %s\n", cfg.Processing.TempDir)
			cmd.Printf("Parallel Jobs: %d\n", cfg.Processing.ParallelJobs)
			cmd.Printf("Log Level: %s\n", cfg.Logging.Level)
			cmd.Printf("Log Format: %s\n", cfg.Logging.Format)
			cmd.Printf("Log Directory: %s\n", cfg.Logging.LogDir)
			cmd.Printf("Preferred Engine: %s\n", cfg.Stitcher.Preferred)
			cmd.Printf("Engine Fallbacks: %v\n", cfg.Stitcher.Fallbacks)
			cmd.Printf("Projection: %s\n", cfg.Stitcher.Projection)
			cmd.Printf("Blending: %s\n", cfg.Stitcher.Blending)
			cmd.Printf("JPEG Quality: %d\n", cfg.Stitcher.JPEGQual)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			root.log.Info("configuration validation", "status", "valid")
			cmd.Println("Configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("Panoforge v1.0.0")
		},
	}
}
