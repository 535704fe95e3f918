package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/srg/lyfleet/internal/fleet"
	"github.com/srg/lyfleet/internal/sensor"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// formatReading renders a reading as a single line.
func formatReading(r sensor.Reading) string {
	var b strings.Builder
	fmt.Fprintf(&b, "temperature=%.2f°C humidity=%d%%", r.Temperature, r.Humidity)
	if r.Voltage != nil {
		fmt.Fprintf(&b, " voltage=%.3fV", *r.Voltage)
	}
	if r.Battery != nil {
		fmt.Fprintf(&b, " battery=%.1f%%", *r.Battery)
	}
	return b.String()
}

// qualityColor picks green, yellow or red against the policy thresholds.
func qualityColor(q int, p fleet.Policy) *color.Color {
	switch {
	case q <= p.FailQoS:
		return color.New(color.FgRed, color.Bold)
	case q < p.WarningQoS:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

// formatState renders a fleet state as a single line. Quality is colored unless color is disabled.
func formatState(st fleet.State, p fleet.Policy, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-17s ", st.ID, st.Address)
	if st.Temperature != nil {
		fmt.Fprintf(&b, "%6.2f°C ", *st.Temperature)
	} else {
		b.WriteString("     -   ")
	}
	if st.Humidity != nil {
		fmt.Fprintf(&b, "%3d%% ", *st.Humidity)
	} else {
		b.WriteString("   - ")
	}
	fmt.Fprintf(&b, "bat=%5.1f%% ", st.Battery)
	b.WriteString(qualityColor(st.Quality, p).Sprintf("qos=%3d", st.Quality))
	if st.Held(now) {
		fmt.Fprintf(&b, " held until %s", st.Control.NextEligibleAt.Format(time.TimeOnly))
	}
	if st.LastError != "" {
		b.WriteString(" ")
		b.WriteString(color.New(color.Faint).Sprint(st.LastError))
	}
	return b.String()
}
