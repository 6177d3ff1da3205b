package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/config"
)

const MDF = "gnifu_slitr_mdf.fits"

// NewStore returns a store over a fresh temporary working directory with
// the calibration, raw and bias directories inside it.
func NewStore(t *testing.T) *artifact.Store {
	t.Helper()
	return artifact.NewStore(artifact.Layout{
		WorkDir: t.TempDir(),
		RawDir:  "raw/",
		BiasDir: "raw/biases/",
		CalDir:  "calibrations",
	})
}

// Touch creates engine-relative files. Names without an extension get the
// artifact extension.
func Touch(t *testing.T, store *artifact.Store, names ...string) {
	t.Helper()
	for _, name := range names {
		path := store.Resolve(name)
		if filepath.Ext(path) == "" {
			path += artifact.Extension
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatalf("touch %s: %v", name, err)
		}
	}
}

// TouchKeys creates the artifacts of every base under every chain.
func TouchKeys(t *testing.T, store *artifact.Store, bases []string, chains ...artifact.Chain) {
	t.Helper()
	for _, chain := range chains {
		Touch(t, store, artifact.Names(bases, chain)...)
	}
}

// Config is a valid run configuration with one flat, one arc and the given
// subjects for both targets.
func Config(layout artifact.Layout, science, standard []string) *config.Config {
	cfg := config.Default()
	cfg.MDF = MDF
	cfg.Layout = layout
	cfg.BiasRefs = []string{"B1", "B2", "B3"}
	cfg.Science = config.Target{Refs: science, FlatRefs: []string{"F1"}, ArcRefs: []string{"A1"}}
	cfg.Standard = config.Target{Refs: standard, FlatRefs: []string{"F2"}, ArcRefs: []string{"A2"}}
	cfg.StandardStar = config.StandardStar{
		Name:       "bd284211",
		Root:       "bd284211_",
		CalDir:     "onedstds$spec50cal/",
		Extinction: "gmos$calib/mkoextinct.dat",
	}
	return &cfg
}
