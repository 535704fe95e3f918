// Package export writes history records and fleet states as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/srg/lyfleet/internal/fleet"
	"github.com/srg/lyfleet/internal/sensor"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var historyHeader = []string{"Time", "Min temperature", "Min humidity", "Max temperature", "Max humidity"}

var stateHeader = []string{"Time", "Id", "Address", "Temperature", "Humidity", "Voltage", "Battery", "Quality", "Fail streak"}

// WriteHistory writes records in arrival order with a header row.
func WriteHistory(w io.Writer, records *orderedmap.OrderedMap[uint32, sensor.HistoryRecord]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}
	for p := records.Oldest(); p != nil; p = p.Next() {
		r := p.Value
		if err := cw.Write([]string{
			r.Timestamp.Format(time.DateTime),
			formatFloat(r.MinTemperature, 1),
			strconv.Itoa(r.MinHumidity),
			formatFloat(r.MaxTemperature, 1),
			strconv.Itoa(r.MaxHumidity),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// StateWriter appends one row per state update.
type StateWriter struct {
	cw     *csv.Writer
	header bool
}

// NewStateWriter writes the header before the first row unless header is false.
func NewStateWriter(w io.Writer, header bool) *StateWriter {
	return &StateWriter{cw: csv.NewWriter(w), header: header}
}

func (sw *StateWriter) Write(st fleet.State) error {
	if sw.header {
		if err := sw.cw.Write(stateHeader); err != nil {
			return err
		}
		sw.header = false
	}

	row := []string{
		st.DateTime.Format(time.RFC3339),
		st.ID,
		st.Address,
		optionalFloat(st.Temperature, 2),
		"",
		optionalFloat(st.Voltage, 3),
		formatFloat(st.Battery, 1),
		strconv.Itoa(st.Quality),
		strconv.Itoa(st.Control.FailStreak),
	}
	if st.Humidity != nil {
		row[4] = strconv.Itoa(*st.Humidity)
	}
	if err := sw.cw.Write(row); err != nil {
		return fmt.Errorf("failed to write state of %s: %w", st.ID, err)
	}
	sw.cw.Flush()
	return sw.cw.Error()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func optionalFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v, prec)
}
