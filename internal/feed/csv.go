package feed

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"pattern-traderv1/internal/model"
)

var csvHeader = []string{"open_time_ms", "open", "high", "low", "close", "volume"}

// LoadCSV reads a recorded candle sequence, oldest first. The header row is
// required; ordering is the caller's responsibility to validate (the engine
// rejects gaps anyway).
func LoadCSV(path string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candles: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read candles: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoData)
	}

	out := make([]model.Candle, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("%s row %d: %d fields, want %d", path, i+2, len(row), len(csvHeader))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d open_time: %w", path, i+2, err)
		}
		c := model.Candle{OpenTime: time.UnixMilli(ms).UTC()}
		for j, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d %s: %w", path, i+2, csvHeader[j+1], err)
			}
			*dst = v
		}
		out = append(out, c)
	}
	return out, nil
}

// SaveCSV writes candles in the LoadCSV format.
func SaveCSV(path string, candles []model.Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create candles: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.OpenTime.UnixMilli(), 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
