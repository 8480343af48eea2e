package jobs_test

import (
	"testing"

	"bookture/internal/jobs"
)

func TestStageTransitions(t *testing.T) {
	cases := []struct {
		from, to jobs.Stage
		want     bool
	}{
		{jobs.StageUploaded, jobs.StageShredding, true},
		{jobs.StageShredding, jobs.StageShredding, true},
		{jobs.StageShredding, jobs.StageGeneratingCover, true},
		{jobs.StageGeneratingPrompts, jobs.StageAnalyzing, false},
		{jobs.StageGeneratingImages, jobs.StageCompleted, true},
		{jobs.StageAnalyzing, jobs.StageError, true},
		{jobs.StageUploaded, jobs.StageError, true},
		{jobs.StageCompleted, jobs.StageError, false},
		{jobs.StageCompleted, jobs.StageResuming, false},
		{jobs.StageError, jobs.StageResuming, true},
		{jobs.StageError, jobs.StageAnalyzing, false},
		{jobs.StageResuming, jobs.StageShredding, true},
		{jobs.StageResuming, jobs.StageCompleted, true},
		{jobs.StageResuming, jobs.StageUploaded, false},
		{jobs.StageUploaded, jobs.StageResuming, true},
		{jobs.StageAnalyzing, jobs.Stage("bogus"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStageClassification(t *testing.T) {
	for _, stage := range jobs.ActiveStages() {
		if !stage.IsActive() || stage.IsTerminal() {
			t.Fatalf("%s should be active and non-terminal", stage)
		}
	}
	for _, stage := range []jobs.Stage{jobs.StageUploaded, jobs.StageResuming, jobs.StageCompleted, jobs.StageError} {
		if stage.IsActive() {
			t.Fatalf("%s should not be active", stage)
		}
	}
	if !jobs.StageCompleted.IsTerminal() || !jobs.StageError.IsTerminal() {
		t.Fatal("completed and error must be terminal")
	}
	if jobs.StageError.Rank() != -1 || jobs.StageResuming.Rank() != -1 {
		t.Fatal("error and resuming sit outside the forward order")
	}
	if jobs.StageAnalyzing.Rank() >= jobs.StageGeneratingCover.Rank() {
		t.Fatal("analyzing must precede cover generation")
	}
}

func TestParseStage(t *testing.T) {
	if stage, ok := jobs.ParseStage(" Generating_Images "); !ok || stage != jobs.StageGeneratingImages {
		t.Fatalf("unexpected parse: %q %v", stage, ok)
	}
	if _, ok := jobs.ParseStage("ripping"); ok {
		t.Fatal("expected unknown stage to be rejected")
	}
}

func TestTitleKeyFolds(t *testing.T) {
	a := jobs.TitleKey("  The   Hobbit ")
	b := jobs.TitleKey("the hobbit")
	c := jobs.TitleKey("ＴＨＥ HOBBIT")
	if a != b || b != c {
		t.Fatalf("expected equal keys, got %q %q %q", a, b, c)
	}
}

func TestJobHelpers(t *testing.T) {
	job := &jobs.Job{CoverRef: "placeholder"}
	if job.HasGeneratedCover("placeholder") {
		t.Fatal("placeholder cover should not count as generated")
	}
	job.CoverRef = "file:///cover.png"
	if !job.HasGeneratedCover("placeholder") {
		t.Fatal("expected generated cover")
	}
	if done := (&jobs.Job{Stage: jobs.StageError, Progress: 100}).IsDone(); !done {
		t.Fatal("progress 100 counts as done")
	}
	if (&jobs.StyleGuide{ArtStyle: "ink"}).Complete() {
		t.Fatal("guide without characters is incomplete")
	}
}
