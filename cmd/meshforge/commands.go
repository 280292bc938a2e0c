package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/chazu/meshforge/pkg/meshio"
	"github.com/chazu/meshforge/pkg/recipe"
	"github.com/chazu/meshforge/pkg/stage"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// options are the flags shared by every processing command.
type options struct {
	config        string
	inputDir      string
	outputDir     string
	autoIncrement bool
	format        string
	prefix        string
	preview       bool
	isolate       bool
	verbose       bool
	json          bool
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.config, "config", "", "TOML configuration file")
	f.StringVar(&o.inputDir, "input-dir", "", "directory searched for input meshes (overrides config)")
	f.StringVar(&o.outputDir, "output-dir", "", "directory exports are written to (overrides config)")
	f.BoolVar(&o.autoIncrement, "auto-increment", true, "append a counter to exported names (overrides config)")
	f.StringVar(&o.format, "format", string(meshio.GLB), "export format: glb, obj, ply, stl, 3mf or dae")
	f.StringVar(&o.prefix, "prefix", "", `export prefix, may contain a subfolder (default "3D/{mesh name}")`)
	f.BoolVar(&o.preview, "preview", false, "write {name}_preview_.{format}, replacing the previous preview")
	f.BoolVar(&o.isolate, "isolate", false, "upload and download the mesh around every stage")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log at debug level")
	f.BoolVar(&o.json, "json", false, "print results as JSON")
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly.
func (o *options) loadConfig(cmd *cobra.Command) (meshio.Config, error) {
	cfg := meshio.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = meshio.LoadConfig(o.config); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("input-dir") {
		cfg.InputDir = o.inputDir
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("auto-increment") {
		cfg.AutoIncrement = o.autoIncrement
	}
	return cfg.Expand()
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *options) app(cmd *cobra.Command) (*App, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, o.logger(cmd.ErrOrStderr())), nil
}

func (o *options) target() (recipe.Export, error) {
	f, err := meshio.ParseFormat(o.format)
	if err != nil {
		return recipe.Export{}, err
	}
	if !lo.Contains(meshio.ExportFormats, f) {
		return recipe.Export{}, fmt.Errorf("%s is not an export format", f)
	}
	return recipe.Export{Format: f, Prefix: o.prefix, Preview: o.preview}, nil
}

// exportFlagsChanged reports whether any export flag was set explicitly.
func exportFlagsChanged(cmd *cobra.Command) bool {
	return lo.SomeBy([]string{"format", "prefix", "preview"}, cmd.Flags().Changed)
}

func (o *options) print(cmd *cobra.Command, results []*Result) error {
	out := cmd.OutOrStdout()
	if o.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		fmt.Fprintf(out, "%s -> %s (%d vertices, %d faces)\n", r.Input, r.Output, r.Vertices, r.Faces)
	}
	return nil
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "meshforge",
		Short:         "Process triangle meshes through remeshing, simplification and repair stages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.register(root)

	root.AddCommand(
		newRunCmd(o),
		newStageCmd(o, "unwrap <mesh>...", "Compute a UV atlas", func(*cobra.Command) ([]stage.Stage, error) {
			return []stage.Stage{stage.Unwrap{}}, nil
		}, nil),
		newRemeshCmd(o),
		newSimplifyCmd(o),
		newFillHolesCmd(o),
		newRepairCmd(o),
		newStagesCmd(),
	)
	return root
}

// newStageCmd builds a command running the stages returned by build on
// every argument mesh. flags registers command-specific flags.
func newStageCmd(o *options, use, short string, build func(*cobra.Command) ([]stage.Stage, error), flags func(*cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := build(cmd)
			if err != nil {
				return err
			}
			if err := stage.Validate(stages...); err != nil {
				return err
			}
			target, err := o.target()
			if err != nil {
				return err
			}
			app, err := o.app(cmd)
			if err != nil {
				return err
			}
			results := make([]*Result, 0, len(args))
			for _, in := range args {
				res, err := app.Process(in, stages, target, o.isolate)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			return o.print(cmd, results)
		},
	}
	if flags != nil {
		flags(cmd)
	}
	return cmd
}

func newRunCmd(o *options) *cobra.Command {
	var recipePath string
	cmd := &cobra.Command{
		Use:   "run <mesh>...",
		Short: "Process meshes with a recipe file",
		Long: `Process meshes with the stages of a recipe file, e.g.

  (remesh :resolution 256 :band 1 :project-back 0.9)
  (post-process :fill-holes true :max-hole-perimeter 0.5)
  (export :format "glb" :prefix "3D/out")

Export flags given on the command line replace the recipe's export.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var override *recipe.Export
			if exportFlagsChanged(cmd) {
				t, err := o.target()
				if err != nil {
					return err
				}
				override = &t
			}
			app, err := o.app(cmd)
			if err != nil {
				return err
			}
			results := make([]*Result, 0, len(args))
			for _, in := range args {
				res, err := app.RunRecipe(in, recipePath, override, o.isolate)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			return o.print(cmd, results)
		},
	}
	cmd.Flags().StringVarP(&recipePath, "recipe", "r", "", "recipe file")
	_ = cmd.MarkFlagRequired("recipe")
	return cmd
}

func newRemeshCmd(o *options) *cobra.Command {
	r := stage.DefaultRemesh()
	return newStageCmd(o, "remesh <mesh>...", "Rebuild the surface on a narrow-band grid",
		func(*cobra.Command) ([]stage.Stage, error) { return []stage.Stage{r}, nil },
		func(cmd *cobra.Command) {
			f := cmd.Flags()
			f.IntVar(&r.Resolution, "resolution", r.Resolution, "grid resolution, a multiple of 16 in [16, 1024]")
			f.Float64Var(&r.Band, "band", r.Band, "narrow band half-width in voxels")
			f.Float64Var(&r.ProjectBack, "project-back", r.ProjectBack, "fraction of the way new vertices move back onto the input")
			f.Float64Var(&r.Scale, "scale", r.Scale, "accepted for compatibility; the frame always follows the mesh bounds")
		})
}

func newSimplifyCmd(o *options) *cobra.Command {
	s := stage.DefaultSimplify()
	return newStageCmd(o, "simplify <mesh>...", "Reduce the face count",
		func(*cobra.Command) ([]stage.Stage, error) { return []stage.Stage{s}, nil },
		func(cmd *cobra.Command) {
			cmd.Flags().IntVar(&s.TargetFaces, "target-faces", s.TargetFaces, "face count to reduce to")
		})
}

func newFillHolesCmd(o *options) *cobra.Command {
	s := stage.FillHoles{MaxHolePerimeter: stage.DefaultPostProcess().MaxHolePerimeter}
	return newStageCmd(o, "fill-holes <mesh>...", "Close small boundary loops",
		func(*cobra.Command) ([]stage.Stage, error) { return []stage.Stage{s}, nil },
		func(cmd *cobra.Command) {
			cmd.Flags().Float64Var(&s.MaxHolePerimeter, "max-hole-perimeter", s.MaxHolePerimeter, "largest perimeter filled, in mesh units")
		})
}

func newRepairCmd(o *options) *cobra.Command {
	p := stage.DefaultPostProcess()
	return newStageCmd(o, "repair <mesh>...", "Run the post-process repair sequence",
		func(*cobra.Command) ([]stage.Stage, error) {
			if err := p.Validate(); err != nil {
				return nil, err
			}
			return p.Stages(), nil
		},
		func(cmd *cobra.Command) {
			f := cmd.Flags()
			f.BoolVar(&p.FillHoles, "fill-holes", p.FillHoles, "close small holes")
			f.Float64Var(&p.MaxHolePerimeter, "max-hole-perimeter", p.MaxHolePerimeter, "largest perimeter filled")
			f.BoolVar(&p.RemoveDuplicateFaces, "remove-duplicate-faces", p.RemoveDuplicateFaces, "drop repeated faces")
			f.BoolVar(&p.RepairNonManifoldEdges, "repair-non-manifold-edges", p.RepairNonManifoldEdges, "split edges shared by more than two faces")
			f.BoolVar(&p.RemoveNonManifoldFaces, "remove-non-manifold-faces", p.RemoveNonManifoldFaces, "drop faces on non-manifold edges")
			f.BoolVar(&p.RemoveSmallComponents, "remove-small-components", p.RemoveSmallComponents, "drop tiny disconnected pieces")
			f.Float64Var(&p.SizeThreshold, "size-threshold", p.SizeThreshold, "component size threshold")
			f.BoolVar(&p.UnifyOrientation, "unify-orientation", p.UnifyOrientation, "make face winding consistent")
		})
}

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List stages and their parameter domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tPARAMETER\tDOMAIN\tDEFAULT")
			for _, name := range stage.Names() {
				domains := stage.DomainsOf(name)
				if len(domains) == 0 {
					fmt.Fprintf(w, "%s\t-\t-\t-\n", name)
					continue
				}
				for _, d := range domains {
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", name, d.Field, d.Allowed, d.Default)
				}
			}
			return w.Flush()
		},
	}
}
