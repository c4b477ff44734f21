package dataset

import (
	"github.com/rs/zerolog"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
	"mripatches/pkg/log"
)

// Manager owns the training/testing partition of one dataset root.
type Manager struct {
	Root     string
	Discover Discoverer
	Ratios   [2]float64
	Seed     *uint64
	Logger   zerolog.Logger

	pairs []models.VolumePair
}

// Pairs discovers the volume pairs once and caches them.
func (m *Manager) Pairs() ([]models.VolumePair, error) {
	if m.pairs != nil {
		return m.pairs, nil
	}
	if m.Discover == nil {
		return nil, errors.NewConfigError("discover", "discovery function is required")
	}
	pairs, err := m.Discover(m.Root)
	if err != nil {
		return nil, err
	}
	m.pairs = pairs
	return pairs, nil
}

// Decompose splits the discovered pairs and saves the split record under
// outDir.
func (m *Manager) Decompose(outDir string) (SplitRecord, error) {
	pairs, err := m.Pairs()
	if err != nil {
		return SplitRecord{}, err
	}
	training, testing, err := Split(pairs, m.Ratios, m.Seed)
	if err != nil {
		return SplitRecord{}, err
	}

	rec := NewSplitRecord(m.Root, training, testing)
	path, err := rec.Save(outDir)
	if err != nil {
		return SplitRecord{}, err
	}

	m.Logger.Info().
		Str("path", path).
		Int("volumes", len(pairs)).
		Int("training", len(training)).
		Int("testing", len(testing)).
		Bool("seeded", m.Seed != nil).
		Str(log.ComponentKey, "dataset").
		Msg("dataset split saved")
	return rec, nil
}
