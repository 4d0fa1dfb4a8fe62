package export

import (
	"encoding/csv"
	"os"
	"strconv"
)

func writeCSV(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"record_index", "ts_utc_iso", "elapsed_s", "cadence_rpm", "power_w", "hr_bpm"}); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.Itoa(s.RecordIndex),
			s.TSUTCISO,
			formatFloat(s.ElapsedS),
			formatFloatPtr(s.CadenceRPM),
			formatFloatPtr(s.PowerW),
			formatFloatPtr(s.HRBPM),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
