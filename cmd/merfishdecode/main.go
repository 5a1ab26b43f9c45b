package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"merfishdecode/internal/logger"
	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/config"
	"merfishdecode/pkg/export"
	"merfishdecode/pkg/metrics"
	"merfishdecode/pkg/pixeldecoder"
	"merfishdecode/pkg/synthetic"
	"merfishdecode/pkg/tensor"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "merfishdecode.yaml", "Configuration file (defaults are used if it does not exist)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	codebookPath := flag.String("codebook", "", "Codebook document in YAML or JSON (overrides the config)")
	outputDir := flag.String("output", "", "Directory to write results to (overrides the config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	diagnostics := flag.Bool("diagnostics", false, "Save label and pass-mask images")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *codebookPath != "" {
		cfg.Input.Codebook = *codebookPath
	}
	if *outputDir != "" {
		cfg.Output.OutputDir = *outputDir
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	cfg.Output.SaveDiagnostics = cfg.Output.SaveDiagnostics || *diagnostics
	cfg.Output.Verbose = cfg.Output.Verbose || *verbose

	if err := run(cfg); err != nil {
		log.Fatalf("Decoding failed: %+v", err)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	iLog := logger.NewStdOutLogger(level)

	params, err := cfg.DecodeParams()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	params.Log = iLog
	params.Metrics = metrics.NewCollector(reg)

	fmt.Println("================================")
	fmt.Println("MERFISH PIXEL-BASED SPOT DECODING")
	fmt.Println("================================")

	cb, err := loadCodebook(cfg)
	if err != nil {
		return err
	}
	iLog.Infof("Codebook has %d codewords for %d targets over %d rounds x %d channels",
		cb.Len(), cb.NumTargets(), cb.Layout().Rounds, cb.Layout().Channels)

	img, err := buildImage(cfg, cb, iLog)
	if err != nil {
		return err
	}

	decoder, err := pixeldecoder.New(cb, params)
	if err != nil {
		return err
	}

	startTime := time.Now()
	res, err := decoder.Run(img)
	if err != nil {
		return err
	}
	processingTime := time.Since(startTime)

	if err := os.MkdirAll(cfg.Output.OutputDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	spotsPath := filepath.Join(cfg.Output.OutputDir, "spots.csv")
	if err := export.SaveSpotTable(res.Spots, spotsPath); err != nil {
		return err
	}
	labelsPath := filepath.Join(cfg.Output.OutputDir, "labels.mflb")
	if err := export.SaveLabelVolume(res.LabelImage, labelsPath); err != nil {
		return err
	}

	if cfg.Output.SaveDiagnostics {
		viewer, err := export.NewViewer(res.LabelImage, res.PassMask)
		if err != nil {
			return err
		}
		for _, layer := range []export.Layer{export.Labels, export.PassMask} {
			dir := filepath.Join(cfg.Output.OutputDir, "diagnostics", layer.String())
			iLog.Infof("Saving %s slices to: %s", layer, dir)
			if err := viewer.SaveSliceSequence(layer, "z", dir); err != nil {
				iLog.Errorf("Failed to save %s slices: %v", layer, err)
			}
		}
	}

	if cfg.Output.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Output.MetricsFile, reg); err != nil {
			iLog.Errorf("Failed to write metrics: %v", err)
		}
	}

	printSummary(res, processingTime, spotsPath, labelsPath)
	return nil
}

func loadCodebook(cfg *config.Config) (*codebook.Codebook, error) {
	if cfg.Input.Codebook != "" {
		return codebook.LoadFile(cfg.Input.Codebook)
	}
	syn := cfg.Input.Synthetic
	layout := codebook.Layout{Rounds: syn.Rounds, Channels: syn.Channels}
	return synthetic.RandomCodebook(layout, syn.OnBits, syn.Codewords, syn.Blanks, syn.Seed)
}

// buildImage renders a synthetic image for cb and applies the configured
// scale factors.
func buildImage(cfg *config.Config, cb *codebook.Codebook, iLog logger.ILogger) (*tensor.Tensor, error) {
	syn := cfg.Input.Synthetic
	builder := &synthetic.Builder{
		Codebook:    cb,
		Z:           syn.Z,
		Y:           syn.Y,
		X:           syn.X,
		NoiseStdDev: syn.Noise,
		Seed:        syn.Seed,
	}
	spots, err := builder.RandomSpots(syn.Spots, syn.SpotSize, syn.Brightness)
	if err != nil {
		return nil, err
	}
	img, err := builder.Build(spots)
	if err != nil {
		return nil, err
	}
	iLog.Infof("Planted %d spots in a %dx%dx%d synthetic image", len(spots), syn.Z, syn.Y, syn.X)

	if len(cfg.Processing.ScaleFactors) == 0 {
		return img, nil
	}
	return tensor.ScaleByRoundChannel(img, cfg.Processing.ScaleFactors, cfg.Processing.NumCores)
}

func printSummary(res *pixeldecoder.Result, processingTime time.Duration, spotsPath, labelsPath string) {
	s := res.Summary
	fmt.Printf("\nDecoding completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Spot table saved to: %s\n", spotsPath)
	fmt.Printf("Label image saved to: %s\n\n", labelsPath)

	fmt.Printf("Summary:\n")
	fmt.Printf("========\n")
	fmt.Printf("Pixels passing thresholds: %d of %d\n", s.PassedPixels, s.Pixels)
	fmt.Printf("Regions: %d (%d rejected by area)\n", s.Regions, s.RejectedByArea)
	fmt.Printf("Spots: %d\n", s.Spots)
	fmt.Printf("Spot area: %.2f +/- %.2f pixels\n", s.AreaMean, s.AreaStdDev)
	fmt.Printf("Spot intensity: %.4f +/- %.4f\n", s.IntensityMean, s.IntensityStdDev)
	fmt.Printf("Blank spots: %d (%.2f%%)\n", s.BlankSpots, 100*s.BlankFraction)

	counts := res.Spots.CountByTarget()
	targets := make([]string, 0, len(counts))
	for t := range counts {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	sort.SliceStable(targets, func(i, j int) bool { return counts[targets[i]] > counts[targets[j]] })
	if len(targets) > 10 {
		targets = targets[:10]
	}
	fmt.Println("\nMost frequent targets:")
	for _, t := range targets {
		fmt.Printf("- %s: %d\n", t, counts[t])
	}
}
