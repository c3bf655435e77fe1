package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"threatmon/internal/logging"
	"threatmon/internal/ml"
)

func main() {
	out := flag.String("out", "ml", "output directory for model artifacts")
	samples := flag.Int("samples", 2000, "number of synthetic training samples")
	trees := flag.Int("trees", 100, "number of isolation trees")
	maxSamples := flag.Int("max-samples", 256, "subsample size per tree")
	contamination := flag.Float64("contamination", 0.1, "expected anomaly fraction")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	logger := logging.NewLogger("info")

	data := ml.SyntheticSamples(*samples, *seed)
	logger.Info("training data generated", "samples", len(data), "features", ml.FeatureNames)

	scaler, err := ml.FitScaler(data)
	if err != nil {
		logger.Error("scaler fit failed", "err", err)
		os.Exit(1)
	}
	scaled := make([][]float64, len(data))
	for i, row := range data {
		scaled[i], err = scaler.Transform(row)
		if err != nil {
			logger.Error("scaling failed", "err", err)
			os.Exit(1)
		}
	}

	forest, err := ml.FitForest(scaled, ml.TrainOptions{
		Trees:         *trees,
		MaxSamples:    *maxSamples,
		Contamination: *contamination,
		Seed:          *seed,
	})
	if err != nil {
		logger.Error("forest fit failed", "err", err)
		os.Exit(1)
	}
	logger.Info("forest fitted", "trees", forest.NEstimators, "max_samples", forest.MaxSamples, "offset", forest.Offset)

	modelPath := filepath.Join(*out, "model.json")
	scalerPath := filepath.Join(*out, "scaler.json")
	statsPath := filepath.Join(*out, "training_stats.json")

	if err := ml.SaveArtifacts(modelPath, scalerPath, &ml.Artifacts{Scaler: scaler, Forest: forest}); err != nil {
		logger.Error("artifact save failed", "err", err)
		os.Exit(1)
	}
	stats := &ml.TrainingStats{
		ModelType:        "IsolationForest",
		NEstimators:      forest.NEstimators,
		Contamination:    *contamination,
		NSamples:         len(data),
		Features:         ml.FeatureNames,
		TrainingDate:     time.Now().UTC(),
		ScalerMean:       scaler.Mean,
		ScalerStd:        scaler.Scale,
		AnomalyThreshold: forest.Offset,
	}
	if err := ml.SaveStats(statsPath, stats); err != nil {
		logger.Error("stats save failed", "err", err)
		os.Exit(1)
	}
	logger.Info("model artifacts written", "model", modelPath, "scaler", scalerPath, "stats", statsPath)
}
