// Package main is the mvprep command line tool.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"mvprep/internal/errdefs"
	"mvprep/pkg/carving"
	"mvprep/pkg/config"
	"mvprep/pkg/dataset"
	"mvprep/pkg/flow"
	"mvprep/pkg/logging"
	"mvprep/pkg/oracle"
	"mvprep/pkg/pipeline"
	"mvprep/pkg/propagation"
	"mvprep/pkg/sparse"
)

const (
	flagConfig         = "config"
	flagVerbose        = "verbose"
	flagDataset        = "dataset"
	flagOut            = "out"
	flagMaskDir        = "mask-dir"
	flagMaskedImageDir = "masked-image-dir"
	flagNoAdjust       = "no-adjust"
	flagNoCopyOrg      = "no-copy-org"
	flagPositiveZ      = "positive-z"
	flagScale          = "scale"
	flagSparse         = "sparse"
	flagImages         = "images"
	flagCopyImages     = "copy-images"
	flagCopyMasks      = "copy-masks"
	flagPath           = "path"
	flagSparseOut      = "sparse-out"
)

// env is shared by every command.
type env struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func main() {
	if err := newApp(&env{}).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(e *env) *cli.App {
	datasetFlag := &cli.StringFlag{Name: flagDataset, Aliases: []string{"d"}, Usage: "dataset JSON `FILE`", Required: true}
	outFlag := &cli.StringFlag{Name: flagOut, Aliases: []string{"o"}, Usage: "output dataset JSON `FILE`", Required: true}

	app := &cli.App{
		Name:  "mvprep",
		Usage: "prepare multi-view image datasets for 3D reconstruction",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "mvprep.yaml",
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagVerbose,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String(flagConfig))
			if err != nil {
				return err
			}
			if c.Bool(flagVerbose) {
				cfg.Output.Verbose = true
			}
			logger, err := logging.NewLogger("mvprep", cfg.Output.Verbose)
			if err != nil {
				return errors.Wrap(err, "failed to create logger")
			}
			e.cfg, e.logger = cfg, logger
			return nil
		},
		After: func(c *cli.Context) error {
			if e.logger != nil {
				//nolint:errcheck
				e.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "mask",
				Usage: "propagate object masks, then normalize, carve and crop the cameras",
				Flags: []cli.Flag{
					datasetFlag,
					outFlag,
					&cli.StringFlag{Name: flagMaskDir, Usage: "override output.maskDir"},
					&cli.StringFlag{Name: flagMaskedImageDir, Usage: "override output.maskedImageDir"},
					&cli.BoolFlag{Name: flagNoAdjust, Usage: "skip normalization, carving and cropping"},
					&cli.BoolFlag{Name: flagNoCopyOrg, Usage: "do not save masked originals"},
				},
				Action: func(c *cli.Context) error {
					return e.mask(c)
				},
			},
			{
				Name:  "normalize",
				Usage: "recenter and rescale camera centers",
				Flags: []cli.Flag{
					datasetFlag,
					outFlag,
					&cli.BoolFlag{Name: flagPositiveZ, Value: true, Usage: "put the lowest camera at z=0 instead of centering z"},
					&cli.Float64Flag{Name: flagScale, Value: 1.0, Usage: "distance of the farthest camera after scaling"},
					&cli.StringFlag{Name: flagSparse, Usage: "COLMAP text model `DIR` to transform along with the cameras"},
					&cli.StringFlag{Name: flagSparseOut, Usage: "write the transformed model to `DIR`"},
				},
				Action: func(c *cli.Context) error {
					ds, err := dataset.Load(c.String(flagDataset))
					if err != nil {
						return err
					}
					if dir := c.String(flagSparse); dir != "" {
						if ds.Reconstruction, err = sparse.ReadText(dir); err != nil {
							return err
						}
					}
					out, err := ds.NormalizeCameras(c.Bool(flagPositiveZ), c.Float64(flagScale))
					if err != nil {
						return err
					}
					if err := e.writeSparse(out, c.String(flagSparseOut)); err != nil {
						return err
					}
					return e.dump(out, c.String(flagOut), dataset.DumpOptions{})
				},
			},
			{
				Name:  "import-colmap",
				Usage: "build a dataset from a COLMAP text model",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagSparse, Usage: "COLMAP text model `DIR`", Required: true},
					&cli.StringFlag{Name: flagImages, Usage: "image `DIR`", Required: true},
					outFlag,
					&cli.StringFlag{Name: flagSparseOut, Usage: "also write the imported model to `DIR`"},
				},
				Action: func(c *cli.Context) error {
					ds, err := dataset.FromColmap(c.String(flagSparse), c.String(flagImages))
					if err != nil {
						return err
					}
					e.logger.Infof("imported %s", ds)
					if err := e.writeSparse(ds, c.String(flagSparseOut)); err != nil {
						return err
					}
					return e.dump(ds, c.String(flagOut), dataset.DumpOptions{})
				},
			},
			{
				Name:  "dump",
				Usage: "rewrite a dataset, optionally copying its images and masks",
				Flags: []cli.Flag{
					datasetFlag,
					outFlag,
					&cli.StringFlag{Name: flagCopyImages, Usage: "copy frame images to `DIR`"},
					&cli.StringFlag{Name: flagCopyMasks, Usage: "copy final masks to `DIR`"},
				},
				Action: func(c *cli.Context) error {
					ds, err := dataset.Load(c.String(flagDataset))
					if err != nil {
						return err
					}
					return e.dump(ds, c.String(flagOut), dataset.DumpOptions{
						CopyImagesTo: c.String(flagCopyImages),
						CopyMasksTo:  c.String(flagCopyMasks),
						Workers:      e.cfg.Processing.Workers,
					})
				},
			},
			{
				Name:  "config",
				Usage: "manage the configuration file",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "write the default configuration",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: flagPath, Usage: "destination `FILE` (defaults to --config)"},
						},
						Action: func(c *cli.Context) error {
							path := c.String(flagPath)
							if path == "" {
								path = c.String(flagConfig)
							}
							if err := config.CreateDefaultConfigFile(path); err != nil {
								return err
							}
							e.logger.Infof("wrote default configuration to %s", path)
							return nil
						},
					},
				},
			},
			{
				Name:  "undistort",
				Usage: "undistort frame images (not supported)",
				Flags: []cli.Flag{datasetFlag},
				Action: func(c *cli.Context) error {
					ds, err := dataset.Load(c.String(flagDataset))
					if err != nil {
						return err
					}
					return ds.UndistortImages()
				},
			},
			{
				Name:  "export-3dgs",
				Usage: "export images and a sparse model for gaussian splatting (not supported)",
				Flags: []cli.Flag{
					datasetFlag,
					&cli.StringFlag{Name: flagOut, Aliases: []string{"o"}, Usage: "output `DIR`", Required: true},
				},
				Action: func(c *cli.Context) error {
					ds, err := dataset.Load(c.String(flagDataset))
					if err != nil {
						return err
					}
					return ds.Export3DGS(c.String(flagOut))
				},
			},
		},
	}
	return app
}

func (e *env) dump(ds *dataset.Dataset, path string, opts dataset.DumpOptions) error {
	if _, err := ds.Dump(path, opts); err != nil {
		return err
	}
	e.logger.Infof("wrote %d frames to %s", len(ds.Frames), path)
	return nil
}

// writeSparse saves the dataset's sparse model to dir. An empty dir is a no-op.
func (e *env) writeSparse(ds *dataset.Dataset, dir string) error {
	if dir == "" {
		return nil
	}
	if ds.Reconstruction == nil {
		return errdefs.InvalidArgument("dataset has no sparse reconstruction to write")
	}
	if err := ds.Reconstruction.WriteText(dir); err != nil {
		return err
	}
	e.logger.Infof("wrote sparse model to %s", dir)
	return nil
}

func (e *env) mask(c *cli.Context) error {
	cfg := e.cfg
	if v := c.String(flagMaskDir); v != "" {
		cfg.Output.MaskDir = v
	}
	if v := c.String(flagMaskedImageDir); v != "" {
		cfg.Output.MaskedImageDir = v
	}
	if c.Bool(flagNoAdjust) {
		cfg.Processing.AdjustCameras = false
	}
	if c.Bool(flagNoCopyOrg) {
		cfg.Processing.CopyOrg = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	seg, fe, err := newOracles(ctx, cfg)
	if err != nil {
		return err
	}
	masker, err := pipeline.NewMasker(paramsFromConfig(cfg), seg, fe, e.logger)
	if err != nil {
		return err
	}

	ds, err := dataset.Load(c.String(flagDataset))
	if err != nil {
		return err
	}
	out, _, err := masker.Process(ctx, ds)
	if err != nil {
		return err
	}
	return e.dump(out, c.String(flagOut), dataset.DumpOptions{})
}

func paramsFromConfig(cfg *config.Config) *pipeline.Params {
	return &pipeline.Params{
		Propagation: propagation.Options{
			ReduceFactor: cfg.Processing.ReduceFactor,
			Shrink:       cfg.Processing.Shrink,
		},
		Carving: carving.Options{
			Resolution: cfg.Carving.Resolution,
			Extent:     cfg.Carving.Extent,
			Workers:    cfg.Processing.Workers,
		},
		CopyOrg:                 cfg.Processing.CopyOrg,
		AdjustCameras:           cfg.Processing.AdjustCameras,
		MaskDir:                 cfg.Output.MaskDir,
		MaskedImageDir:          cfg.Output.MaskedImageDir,
		Workers:                 cfg.Processing.Workers,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
	}
}

// newOracles returns the configured segmentation and flow backends. The remote
// backend must answer its health check.
func newOracles(ctx context.Context, cfg *config.Config) (oracle.Segmenter, oracle.FlowEstimator, error) {
	if cfg.Oracle.Backend == config.BackendRemote {
		client := oracle.NewClient(cfg.Oracle.URL, cfg.Timeout())
		if err := client.CheckHealth(ctx); err != nil {
			return nil, nil, errors.Wrapf(err, "model server at %s is not healthy", cfg.Oracle.URL)
		}
		return client, client, nil
	}
	return oracle.NewOtsuSegmenter(), flow.NewBlockMatcher(cfg.Oracle.FlowBlockSize, cfg.Oracle.FlowSearchRadius), nil
}
