package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// Artifact file names inside the artifacts directory.
const (
	ModelFile    = "model.json"
	ScalerFile   = "scaler.json"
	FeaturesFile = "model_features.json"
)

// Artifacts are the outputs of offline training needed at serving time.
type Artifacts struct {
	Features []string
	Scaler   *StandardScaler
	Model    *LogisticRegression
}

// Version returns the declared model version. An undeclared version is
// reported as "unversioned-" plus the content fingerprint.
func (a *Artifacts) Version() string {
	if a.Model == nil || a.Model.Version == "" {
		return "unversioned-" + a.Fingerprint()
	}
	return a.Model.Version
}

// Fingerprint hashes the feature list, scaler and model parameters. Two
// artifact sets score identically iff their fingerprints match.
func (a *Artifacts) Fingerprint() string {
	h := xxhash.New()
	for _, v := range []any{a.Features, a.Scaler, a.Model} {
		data, _ := json.Marshal(v)
		_, _ = h.Write(data)
		_, _ = h.WriteString("\x00")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Validate checks every artifact and their agreement on width.
func (a *Artifacts) Validate() error {
	if len(a.Features) == 0 {
		return fmt.Errorf("%s: feature list is empty", FeaturesFile)
	}
	if a.Scaler == nil || a.Model == nil {
		return domain.ErrArtifactUnavailable
	}
	if err := a.Scaler.Validate(); err != nil {
		return err
	}
	if err := a.Model.Validate(); err != nil {
		return err
	}
	if a.Scaler.Width() != len(a.Features) || a.Model.Width() != len(a.Features) {
		return fmt.Errorf("%w: %d features, scaler width %d, model width %d",
			ErrDimensionMismatch, len(a.Features), a.Scaler.Width(), a.Model.Width())
	}
	return nil
}

// Invoker builds an invoker over the artifacts.
func (a *Artifacts) Invoker() (*Invoker, error) {
	inv, err := NewInvoker(a.Scaler, a.Model, a.Version())
	if err != nil {
		return nil, err
	}
	inv.fingerprint = a.Fingerprint()
	return inv, nil
}

// Load reads the artifacts from dir. A missing file yields an error wrapping
// domain.ErrArtifactUnavailable.
func Load(dir string) (*Artifacts, error) {
	a := &Artifacts{
		Scaler: &StandardScaler{},
		Model:  &LogisticRegression{},
	}
	if err := readJSON(filepath.Join(dir, FeaturesFile), &a.Features); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, ScalerFile), a.Scaler); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, ModelFile), a.Model); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Save writes the artifacts to dir.
func Save(dir string, a *Artifacts) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	files := map[string]any{
		FeaturesFile: a.Features,
		ScalerFile:   a.Scaler,
		ModelFile:    a.Model,
	}
	for name, v := range files {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s not found", domain.ErrArtifactUnavailable, path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
