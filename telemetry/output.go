package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/fieldview/config"
)

// OutputManager writes run output: perf.csv, rebuilds.csv and the resolved
// config. A nil manager is valid and discards everything.
type OutputManager struct {
	dir     string
	perf    csvFile
	rebuild csvFile
}

type csvFile struct {
	f             *os.File
	headerWritten bool
}

// append writes records, with a header on the first call.
func (c *csvFile) append(records any) error {
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// NewOutputManager creates dir and opens the CSV files.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	f, err := os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perf.f = f

	f, err = os.Create(filepath.Join(dir, "rebuilds.csv"))
	if err != nil {
		om.perf.f.Close()
		return nil, fmt.Errorf("creating rebuilds.csv: %w", err)
	}
	om.rebuild.f = f
	return om, nil
}

// WriteConfig saves the resolved configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WritePerf appends a perf.csv row.
func (om *OutputManager) WritePerf(stats PerfStats, frame int64) error {
	if om == nil {
		return nil
	}
	if err := om.perf.append([]PerfStatsCSV{stats.ToCSV(frame)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteRebuild appends a rebuilds.csv row.
func (om *OutputManager) WriteRebuild(r RebuildRecord) error {
	if om == nil {
		return nil
	}
	if err := om.rebuild.append([]RebuildRecord{r}); err != nil {
		return fmt.Errorf("writing rebuild: %w", err)
	}
	return nil
}

// Path returns name joined to the output directory, or "" when disabled.
func (om *OutputManager) Path(name string) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, name)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, c := range []*csvFile{&om.perf, &om.rebuild} {
		if c.f == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
