package ml

import "testing"

func TestFitScaler(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if s.Mean[0] != 2 || s.Mean[1] != 3 {
		t.Fatalf("mean: %v", s.Mean)
	}
	if s.Scale[0] != 1 || s.Scale[1] != 1 {
		t.Fatalf("scale: %v", s.Scale)
	}
	out, err := s.Transform([]float64{3, 2})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if out[0] != 1 || out[1] != -1 {
		t.Fatalf("transform: %v", out)
	}
	if _, err := s.Transform([]float64{1}); err == nil {
		t.Fatalf("expected feature count error")
	}
	if _, err := FitScaler(nil); err == nil {
		t.Fatalf("expected empty data error")
	}
}

func TestFitScalerConstantFeature(t *testing.T) {
	s, err := FitScaler([][]float64{{5, 1}, {5, 3}})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if s.Scale[0] != 1 {
		t.Fatalf("constant feature scale: %v", s.Scale[0])
	}
	out, _ := s.Transform([]float64{5, 2})
	if out[0] != 0 {
		t.Fatalf("constant feature transform: %v", out[0])
	}
}

func TestSyntheticSamples(t *testing.T) {
	a := SyntheticSamples(1000, 7)
	b := SyntheticSamples(1000, 7)
	if len(a) != 1000 {
		t.Fatalf("count: %d", len(a))
	}
	for i := range a {
		if len(a[i]) != 3 {
			t.Fatalf("features: %d", len(a[i]))
		}
		if a[i][0] < 0 || a[i][0] > 60 || a[i][1] < 0 || a[i][1] > 100 || a[i][2] < 0 || a[i][2] > 1023 {
			t.Fatalf("out of range sample: %v", a[i])
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("same seed should reproduce samples")
			}
		}
	}
}

func TestFitForestDeterministic(t *testing.T) {
	data := SyntheticSamples(400, 3)
	f1, err := FitForest(data, TrainOptions{Trees: 20, Seed: 11})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	f2, err := FitForest(data, TrainOptions{Trees: 20, Seed: 11})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if f1.Offset != f2.Offset {
		t.Fatalf("offset: %v vs %v", f1.Offset, f2.Offset)
	}
	if len(f1.Trees) != 20 || len(f1.Trees[0].Nodes) != len(f2.Trees[0].Nodes) {
		t.Fatalf("trees differ between identical fits")
	}
}

func TestFitForestContamination(t *testing.T) {
	data := SyntheticSamples(1000, 5)
	f, err := FitForest(data, TrainOptions{Trees: 50, Contamination: 0.1, Seed: 5})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	flagged := 0
	for _, row := range data {
		if f.Decision(row) < 0 {
			flagged++
		}
	}
	if flagged < 50 || flagged > 150 {
		t.Fatalf("offset should sit near the contamination quantile, flagged %d of 1000", flagged)
	}
	if err := f.validate(3); err != nil {
		t.Fatalf("fitted forest invalid: %v", err)
	}
}

func TestFitForestSeparatesExtremes(t *testing.T) {
	data := SyntheticSamples(1000, 9)
	scaler, err := FitScaler(data)
	if err != nil {
		t.Fatalf("scaler: %v", err)
	}
	scaled := make([][]float64, len(data))
	for i, row := range data {
		scaled[i], err = scaler.Transform(row)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
	}
	f, err := FitForest(scaled, TrainOptions{Trees: 100, Seed: 9})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	normal, _ := scaler.Transform([]float64{27, 50, 250})
	extreme, _ := scaler.Transform([]float64{58, 2, 1000})
	if f.Score(extreme) >= f.Score(normal) {
		t.Fatalf("extreme point should score lower: %v vs %v", f.Score(extreme), f.Score(normal))
	}
	if d := f.Decision(normal); d < 0 {
		t.Fatalf("distribution center flagged anomalous: %v", d)
	}
	if d := f.Decision(extreme); d >= 0 {
		t.Fatalf("extreme point not flagged: %v", d)
	}
}

func TestFitForestRejectsTinyData(t *testing.T) {
	if _, err := FitForest([][]float64{{1, 2, 3}}, TrainOptions{}); err == nil {
		t.Fatalf("expected sample count error")
	}
}
