package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sujitk-cyber/pipe-align-predict/internal/config"
	"github.com/sujitk-cyber/pipe-align-predict/internal/db"
	"github.com/sujitk-cyber/pipe-align-predict/internal/ili"
	"github.com/sujitk-cyber/pipe-align-predict/internal/ingest"
	"github.com/sujitk-cyber/pipe-align-predict/internal/report"
	"github.com/sujitk-cyber/pipe-align-predict/internal/units"
	"github.com/sujitk-cyber/pipe-align-predict/internal/version"
)

var (
	runAPath = flag.String("run-a", "", "CSV file for the earlier inspection run")
	runBPath = flag.String("run-b", "", "CSV file for the later inspection run")
	years    = flag.Float64("years", 0, "years between run A and run B")

	multiRun = flag.String("multirun", "", "comma-separated CSV files for 3+ runs, oldest first (replaces -run-a/-run-b)")
	yearGaps = flag.String("year-gaps", "", "comma-separated year gaps between consecutive runs (multirun mode)")
	runIDs   = flag.String("run-ids", "", "comma-separated run identifiers (default: file basenames)")

	outDir        = flag.String("out", "output", "directory for report tables")
	outUnits      = flag.String("units", units.Feet, "distance units in report tables (ft, m)")
	renderCharts  = flag.Bool("charts", false, "write severity and growth charts as HTML")
	plotResiduals = flag.Bool("plot-residuals", false, "write alignment residuals PNG")

	dbPath        = flag.String("db", "", "sqlite database to persist results (optional)")
	migrationsDir = flag.String("migrations", "migrations", "directory holding schema migrations")

	configPath  = flag.String("config", "", "tuning config JSON (default: search for config/tuning.defaults.json)")
	showVersion = flag.Bool("version", false, "print version and exit")

	// Tuning overrides. Negative means "use the config value".
	distTol       = flag.Float64("dist-tol", -1, "matching distance tolerance in feet")
	clockTol      = flag.Float64("clock-tol", -1, "matching clock tolerance in degrees")
	costThresh    = flag.Float64("cost-thresh", -1, "cost above which a match is UNCERTAIN")
	criticalDepth = flag.Float64("critical-depth", -1, "wall-loss percent treated as critical")
	forecastYears = flag.Float64("forecast-years", -1, "depth projection horizon in years")
	clusterEps    = flag.Float64("cluster-eps", 0, "clustering neighborhood in feet (0 disables clustering)")
	clusterMode   = flag.String("cluster-mode", "", "clustering mode: 1d or 2d")
)

func loadTuning() *config.TuningConfig {
	if *configPath != "" {
		cfg, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		return cfg
	}
	return config.MustLoadDefaultConfig()
}

// override returns the flag value when set, otherwise the config value.
func override(flagVal, cfgVal float64) float64 {
	if flagVal >= 0 {
		return flagVal
	}
	return cfgVal
}

func pipelineParams(cfg *config.TuningConfig) ili.PipelineParams {
	mode := cfg.GetClusterMode()
	if *clusterMode != "" {
		mode = *clusterMode
	}
	eps := cfg.GetClusterEpsFt()
	if *clusterEps > 0 {
		eps = *clusterEps
	}

	return ili.PipelineParams{
		Match: ili.MatchParams{
			DistTolFt:   override(*distTol, cfg.GetDistTolFt()),
			ClockTolDeg: override(*clockTol, cfg.GetClockTolDeg()),
			CostThresh:  override(*costThresh, cfg.GetCostThresh()),
			Weights: ili.Weights{
				Dist:        cfg.GetWeightDist(),
				Clock:       cfg.GetWeightClock(),
				Depth:       cfg.GetWeightDepth(),
				Size:        cfg.GetWeightSize(),
				TypePenalty: cfg.GetTypePenalty(),
			},
		},
		Growth: ili.GrowthParams{
			CriticalDepthPct:  override(*criticalDepth, cfg.GetCriticalDepthPct()),
			ForecastYears:     override(*forecastYears, cfg.GetForecastYears()),
			AccelThresholdPct: cfg.GetAccelThresholdPct(),
		},
		Cluster: ili.ClusterParams{
			EpsFt:      eps,
			Mode:       mode,
			MinSamples: cfg.GetClusterMinSamples(),
		},
		EnableClustering: *clusterEps > 0,
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func runIDForPath(path string, ids []string, i int) string {
	if i < len(ids) && ids[i] != "" {
		return ids[i]
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func openStore() (*db.AnalysisStore, func()) {
	if *dbPath == "" {
		return nil, func() {}
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return db.NewAnalysisStore(database), func() { database.Close() }
}

func writeOutputs(dir string, res *ili.PipelineResult) {
	if err := report.WriteAll(dir, res, *outUnits); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if *renderCharts {
		path := filepath.Join(dir, "charts.html")
		if err := report.RenderCharts(path, res.Growth); err != nil {
			log.Fatalf("Failed to render charts: %v", err)
		}
	}

	if *plotResiduals && len(res.Alignment.Residuals) > 0 {
		path := filepath.Join(dir, "residuals.png")
		if err := report.SaveResidualsPlot(path, res.Alignment.Residuals); err != nil {
			log.Fatalf("Failed to plot residuals: %v", err)
		}
	}
}

func runTwoRunMode(params ili.PipelineParams) {
	if *runAPath == "" || *runBPath == "" {
		log.Fatal("Both -run-a and -run-b are required (or use -multirun)")
	}
	if *years <= 0 {
		log.Fatal("-years must be positive")
	}

	ids := splitList(*runIDs)
	idA := runIDForPath(*runAPath, ids, 0)
	idB := runIDForPath(*runBPath, ids, 1)

	runA, infoA, err := ingest.LoadRun(*runAPath, idA)
	if err != nil {
		log.Fatalf("Failed to load run A: %v", err)
	}
	runB, infoB, err := ingest.LoadRun(*runBPath, idB)
	if err != nil {
		log.Fatalf("Failed to load run B: %v", err)
	}
	log.Printf("Loaded run A (%s, %d features, format %s) and run B (%s, %d features, format %s)",
		idA, len(runA), infoA.ConfigName, idB, len(runB), infoB.ConfigName)

	res, err := ili.RunPipeline(runA, runB, *years, params)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	res.RunIDA = idA
	res.RunIDB = idB

	writeOutputs(*outDir, res)

	store, closeDB := openStore()
	defer closeDB()
	if store != nil {
		if _, err := store.SaveAnalysis(res); err != nil {
			log.Fatalf("Failed to persist analysis: %v", err)
		}
		log.Printf("Persisted analysis %s", res.AnalysisID)
	}

	log.Printf("Done: %d matched, %d missing, %d new (alignment %s, %d control points)",
		len(res.Match.Matched), len(res.Match.Missing), len(res.Match.New),
		res.Alignment.Method, len(res.Alignment.Matched))
}

func parseYearGaps(s string, wantGaps int) []float64 {
	parts := splitList(s)
	if len(parts) != wantGaps {
		log.Fatalf("-year-gaps needs %d comma-separated values, got %d", wantGaps, len(parts))
	}

	gaps := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 {
			log.Fatalf("Invalid year gap %q: must be a positive number", p)
		}
		gaps[i] = v
	}
	return gaps
}

func runMultiRunMode(params ili.PipelineParams, cfg *config.TuningConfig) {
	paths := splitList(*multiRun)
	if len(paths) < 3 {
		log.Fatal("-multirun needs at least 3 CSV files (use -run-a/-run-b for two runs)")
	}
	gaps := parseYearGaps(*yearGaps, len(paths)-1)

	ids := splitList(*runIDs)
	orderedIDs := make([]string, len(paths))
	runs := make([][]ili.FeatureRecord, len(paths))
	for i, path := range paths {
		id := runIDForPath(path, ids, i)
		features, info, err := ingest.LoadRun(path, id)
		if err != nil {
			log.Fatalf("Failed to load run %s: %v", path, err)
		}
		log.Printf("Loaded run %s (%d features, format %s)", id, len(features), info.ConfigName)
		orderedIDs[i] = id
		runs[i] = features
	}

	store, closeDB := openStore()
	defer closeDB()

	var firstAnalysisID string
	pairMatches := make([][]ili.MatchedPair, len(paths)-1)
	for i := 0; i < len(paths)-1; i++ {
		res, err := ili.RunPipeline(runs[i], runs[i+1], gaps[i], params)
		if err != nil {
			log.Fatalf("Pipeline failed for runs %s/%s: %v", orderedIDs[i], orderedIDs[i+1], err)
		}
		res.RunIDA = orderedIDs[i]
		res.RunIDB = orderedIDs[i+1]
		pairMatches[i] = res.Match.Matched

		writeOutputs(filepath.Join(*outDir, fmt.Sprintf("pair_%02d", i)), res)
		if store != nil {
			if _, err := store.SaveAnalysis(res); err != nil {
				log.Fatalf("Failed to persist analysis: %v", err)
			}
			if firstAnalysisID == "" {
				firstAnalysisID = res.AnalysisID
			}
		}
	}

	tracks, err := ili.BuildTracks(pairMatches, orderedIDs)
	if err != nil {
		log.Fatalf("Failed to build tracks: %v", err)
	}

	criterion := ili.Criterion(cfg.GetModelCriterion())
	growth := ili.AnalyzeTracks(tracks, gaps, params.Growth, criterion)

	tracksPath := filepath.Join(*outDir, "tracks.csv")
	if err := report.WriteTracksCSV(tracksPath, growth); err != nil {
		log.Fatalf("Failed to write tracks: %v", err)
	}

	if store != nil && firstAnalysisID != "" {
		if err := store.SaveTracks(firstAnalysisID, growth); err != nil {
			log.Fatalf("Failed to persist tracks: %v", err)
		}
	}

	accelerating := 0
	for i := range growth {
		if growth[i].Acceleration.Accelerating {
			accelerating++
		}
	}
	log.Printf("Done: %d tracks across %d runs (%d accelerating), wrote %s",
		len(growth), len(paths), accelerating, tracksPath)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("pipe-align-predict %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Unexpected arguments: %v\n", flag.Args())
		flag.Usage()
		os.Exit(2)
	}

	if !units.IsValid(*outUnits) {
		log.Fatalf("Invalid -units %q: valid units are %s", *outUnits, units.GetValidUnitsString())
	}

	cfg := loadTuning()
	params := pipelineParams(cfg)

	if *multiRun != "" {
		runMultiRunMode(params, cfg)
		return
	}
	runTwoRunMode(params)
}
