package routing

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ExportTimingCSV writes a single-row CSV snapshot of the manager's
// timing statistics to path — header on row one, the current
// count/min/max/sum of every phase (overall, dijkstra, mst) side by
// side on row two — overwriting any previous
// export. This is the one piece of persisted state the routing
// manager produces.
func (m *Manager) ExportTimingCSV(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open csv file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{
		"overall_count", "overall_min_us", "overall_max_us", "overall_sum_us",
		"dijkstra_count", "dijkstra_min_us", "dijkstra_max_us", "dijkstra_sum_us",
		"mst_count", "mst_min_us", "mst_max_us", "mst_sum_us",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("cannot write header: %w", err)
	}

	m.mu.Lock()
	row := append(append(timingRow(m.overallTiming), timingRow(m.dijkstraTiming)...), timingRow(m.mstTiming)...)
	m.mu.Unlock()

	if err := w.Write(row); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush error: %w", err)
	}
	return nil
}

func timingRow(t TimingStats) []string {
	return []string{
		strconv.FormatUint(t.Count, 10),
		strconv.FormatUint(t.Min(), 10),
		strconv.FormatUint(t.MaxUs, 10),
		strconv.FormatUint(t.SumUs, 10),
	}
}
