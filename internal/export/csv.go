package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
)

// Header returns the CSV header for n zones:
// step,time_h,t_ext,t_sol,T1..Tn,H1..Hn.
func Header(n int) []string {
	h := []string{"step", "time_h", "t_ext", "t_sol"}
	for i := 1; i <= n; i++ {
		h = append(h, fmt.Sprintf("T%d", i))
	}
	for i := 1; i <= n; i++ {
		h = append(h, fmt.Sprintf("H%d", i))
	}
	return h
}

// Record formats one snapshot. Heaters are written 1 (on) or 0 (off).
func Record(s enclosure.Snapshot) []string {
	rec := make([]string, 0, 4+2*len(s.Temperatures))
	rec = append(rec,
		strconv.Itoa(s.Step),
		formatFloat(s.Time),
		formatFloat(s.Exterior),
		formatFloat(s.Ground),
	)
	for _, t := range s.Temperatures {
		rec = append(rec, formatFloat(t))
	}
	for _, on := range s.HeatersOn {
		if on {
			rec = append(rec, "1")
		} else {
			rec = append(rec, "0")
		}
	}
	return rec
}

// WriteCSV writes the trajectory, one row per recorded step.
func WriteCSV(w io.Writer, res *enclosure.Result) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header(res.Zones())); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, s := range res.Snapshots {
		if err := writer.Write(Record(s)); err != nil {
			return fmt.Errorf("failed to write CSV record %d: %w", s.Step, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
