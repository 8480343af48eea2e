package stage_test

import (
	"testing"

	"bookture/internal/stage"
)

func TestCheckDependencies(t *testing.T) {
	ready := stage.CheckDependencies("cover", stage.Needs("job store", true), stage.Needs("image generator", true))
	if !ready.Ready || ready.Name != "cover" || ready.Detail != "" {
		t.Fatalf("unexpected health: %+v", ready)
	}

	missing := stage.CheckDependencies("cover",
		stage.Needs("job store", true),
		stage.Needs("image generator", false),
		stage.Needs("artifact store", false),
	)
	if missing.Ready {
		t.Fatal("expected not ready")
	}
	if missing.Detail != "image generator, artifact store unavailable" {
		t.Fatalf("unexpected detail %q", missing.Detail)
	}
}
