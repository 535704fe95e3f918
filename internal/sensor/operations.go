package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/srg/lyfleet/internal/codec"
	"github.com/srg/lyfleet/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// historyLag is how far behind now the last history record of a rich device is expected.
// The device only publishes an hourly bucket once the hour is over.
const historyLag = time.Hour

// Reading subscribes to the sample characteristic and waits for one notification.
// A device that stays silent fails with device.ErrTimeout.
func (l *Link) Reading(ctx context.Context) (Reading, error) {
	var r Reading
	err := l.run(ctx, "reading", func(ctx context.Context) error {
		var (
			got       bool
			decodeErr error
		)
		if err := l.subscribe(device.UUIDData, func(b []byte) {
			s, err := codec.DecodeSample(l.opts.Variant, b)
			if err != nil {
				decodeErr = err
				return
			}
			r = readingFromSample(s)
			got = true
		}); err != nil {
			return err
		}

		ok, err := l.wait()
		if err != nil {
			return err
		}
		if decodeErr != nil {
			return device.NewLinkError("reading", l.address, device.ErrMalformedPayload, decodeErr)
		}
		if !ok || !got {
			l.logger.WithField("timeout", l.opts.NotificationTimeout).Debug("|-- timeout waiting for sample")
			return device.NewLinkError("reading", l.address, device.ErrTimeout,
				fmt.Errorf("no data for %s", l.opts.NotificationTimeout))
		}
		return nil
	})
	if err != nil {
		return Reading{}, err
	}
	return r, nil
}

// Poll takes one reading with the battery filled in for both variants.
// On the simple variant the battery characteristic is read in the same session.
func (l *Link) Poll(ctx context.Context) (Reading, error) {
	var r Reading
	err := l.run(ctx, "poll", func(ctx context.Context) error {
		var err error
		if r, err = l.Reading(ctx); err != nil {
			return err
		}
		if r.Battery != nil {
			return nil
		}
		pct, err := l.Battery(ctx)
		if err != nil {
			return err
		}
		r.Battery = &pct
		return nil
	})
	if err != nil {
		return Reading{}, err
	}
	return r, nil
}

// History collects the stored min/max records in arrival order, keyed by record index.
// Collection ends when a wait times out or, for the rich variant, once the latest record
// reaches now minus one hour. progress, when not nil, is called for every record.
func (l *Link) History(ctx context.Context, progress func(HistoryRecord)) (*orderedmap.OrderedMap[uint32, HistoryRecord], error) {
	var records *orderedmap.OrderedMap[uint32, HistoryRecord]
	err := l.run(ctx, "history", func(ctx context.Context) error {
		records = orderedmap.New[uint32, HistoryRecord]()

		var start, expectedEnd time.Time
		if l.profile.relativeHistory {
			st, err := l.StartTime(ctx)
			if err != nil {
				return err
			}
			start = st
			expectedEnd = l.clock.Now().Add(-historyLag)
		}

		var (
			latest    time.Time
			decodeErr error
		)
		if err := l.subscribe(device.UUIDHistory, func(b []byte) {
			e, err := codec.DecodeHistory(l.opts.Variant, b)
			if err != nil {
				decodeErr = err
				return
			}
			rec := l.historyRecord(e, start)
			latest = rec.Timestamp
			records.Set(e.Index, rec)
			if progress != nil {
				progress(rec)
			}
		}); err != nil {
			return err
		}

		for {
			ok, err := l.wait()
			if err != nil {
				return err
			}
			if decodeErr != nil {
				return device.NewLinkError("history", l.address, device.ErrMalformedPayload, decodeErr)
			}
			if !ok {
				l.logger.WithField("records", records.Len()).Debug("|-- history stream went quiet")
				return nil
			}
			if l.profile.relativeHistory && !latest.IsZero() && !latest.Before(expectedEnd) {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (l *Link) historyRecord(e codec.HistoryEntry, start time.Time) HistoryRecord {
	ts := time.Unix(int64(e.Seconds), 0)
	if l.profile.relativeHistory {
		ts = start.Add(time.Duration(e.Seconds) * time.Second)
	}
	return HistoryRecord{
		Index:          e.Index,
		Timestamp:      ts,
		MinTemperature: e.MinTemperature,
		MinHumidity:    e.MinHumidity,
		MaxTemperature: e.MaxTemperature,
		MaxHumidity:    e.MaxHumidity,
	}
}

// Battery returns the charge in percent. The simple variant reads it from a dedicated
// characteristic; the rich variant estimates it from a fresh sample's voltage.
func (l *Link) Battery(ctx context.Context) (float64, error) {
	if l.profile.batteryFromSample {
		r, err := l.Reading(ctx)
		if err != nil {
			return 0, err
		}
		if r.Battery == nil {
			return 0, device.NewLinkError("battery", l.address, device.ErrMalformedPayload, fmt.Errorf("sample carries no voltage"))
		}
		return *r.Battery, nil
	}

	var pct float64
	err := l.run(ctx, "battery", func(context.Context) error {
		b, err := l.radio.ReadCharacteristic(device.UUIDBattery)
		if err != nil {
			return err
		}
		pct, err = codec.DecodeBattery(b)
		return err
	})
	return pct, err
}

// Units returns the display unit, "C" or "F".
func (l *Link) Units(ctx context.Context) (string, error) {
	var unit string
	err := l.run(ctx, "units", func(context.Context) error {
		b, err := l.radio.ReadCharacteristic(device.UUIDUnits)
		if err != nil {
			return err
		}
		unit, err = codec.DecodeUnits(l.opts.Variant, b)
		return err
	})
	return unit, err
}

// SetUnits switches the display unit. Anything but C or F fails with device.ErrValue
// before the device is contacted.
func (l *Link) SetUnits(ctx context.Context, unit string) error {
	b, err := codec.EncodeUnits(l.opts.Variant, unit)
	if err != nil {
		return device.NewLinkError("set units", l.address, device.ErrValue, err)
	}
	return l.run(ctx, "set units", func(context.Context) error {
		return l.radio.WriteCharacteristic(device.UUIDUnits, b, true)
	})
}

// Clock returns the device time and its timezone offset in hours.
// On the rich variant the time is the runtime since boot, counted from the epoch.
func (l *Link) Clock(ctx context.Context) (time.Time, int, error) {
	var (
		t  time.Time
		tz int
	)
	err := l.run(ctx, "clock", func(context.Context) error {
		b, err := l.radio.ReadCharacteristic(device.UUIDTime)
		if err != nil {
			return err
		}
		t, tz, err = codec.DecodeEpoch(b)
		return err
	})
	return t, tz, err
}

// SetClock writes t together with TZOffset. Ignored by the rich variant, which has no visible clock.
func (l *Link) SetClock(ctx context.Context, t time.Time) error {
	if l.profile.clockReadOnly {
		l.logger.Debug("Device has no clock, ignoring time update")
		return nil
	}
	data := codec.EncodeEpoch(t, l.TZOffset())
	return l.run(ctx, "set clock", func(context.Context) error {
		return l.radio.WriteCharacteristic(device.UUIDTime, data, true)
	})
}

// StartTime returns when a rich device booted: now minus its runtime.
// The value is computed once and cached for the life of the Link.
func (l *Link) StartTime(ctx context.Context) (time.Time, error) {
	if !l.profile.relativeHistory {
		return time.Time{}, fmt.Errorf("%w: %s keeps absolute time", device.ErrUnsupported, l.opts.Variant)
	}
	l.cacheMu.Lock()
	cached := l.startTime
	l.cacheMu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	runtime, _, err := l.Clock(ctx)
	if err != nil {
		return time.Time{}, err
	}
	st := l.clock.Now().Add(-time.Duration(runtime.Unix()) * time.Second)

	l.cacheMu.Lock()
	l.startTime = &st
	l.cacheMu.Unlock()

	l.logger.WithField("start_time", st.Format(time.RFC3339)).Debug("Device start time computed")
	return st, nil
}

// RecordCount returns the total and currently stored history record counters.
func (l *Link) RecordCount(ctx context.Context) (total, current uint32, err error) {
	err = l.run(ctx, "record count", func(context.Context) error {
		b, err := l.radio.ReadCharacteristic(device.UUIDNumRecords)
		if err != nil {
			return err
		}
		total, current, err = codec.DecodeRecordCount(b)
		return err
	})
	return total, current, err
}

// HistoryIndex returns the history cursor.
func (l *Link) HistoryIndex(ctx context.Context) (uint32, error) {
	var idx uint32
	err := l.run(ctx, "history index", func(context.Context) error {
		b, err := l.radio.ReadCharacteristic(device.UUIDRecordIndex)
		if err != nil {
			return err
		}
		idx, err = codec.DecodeHistoryIndex(b)
		return err
	})
	return idx, err
}

// SetHistoryIndex moves the history cursor, so the next History starts from idx.
func (l *Link) SetHistoryIndex(ctx context.Context, idx uint32) error {
	return l.run(ctx, "set history index", func(context.Context) error {
		return l.radio.WriteCharacteristic(device.UUIDRecordIndex, codec.EncodeHistoryIndex(idx), true)
	})
}

// TZOffset returns the timezone offset in whole hours written along with the clock.
// Defaults to the local offset, rounded down.
func (l *Link) TZOffset() int {
	l.cacheMu.Lock()
	tz := l.tzOffset
	l.cacheMu.Unlock()
	if tz != nil {
		return *tz
	}
	_, offset := l.clock.Now().Zone()
	return floorDiv(offset, 3600)
}

// SetTZOffset overrides the timezone offset. Ignored by the rich variant.
func (l *Link) SetTZOffset(hours int) {
	if l.profile.clockReadOnly {
		return
	}
	l.cacheMu.Lock()
	l.tzOffset = &hours
	l.cacheMu.Unlock()
}

func (l *Link) subscribe(uuid string, handler func([]byte)) error {
	l.setState(Subscribing)
	defer l.setState(Connected)

	l.logger.WithField("char_uuid", device.ShortenUUID(device.NormalizeUUID(uuid))).Debug("|-- subscribing")
	return l.radio.SubscribeNotifications(uuid, handler)
}

func (l *Link) wait() (bool, error) {
	l.setState(AwaitingNotification)
	defer l.setState(Connected)

	ok, err := l.radio.WaitForNotification(l.opts.NotificationTimeout)
	if err != nil {
		l.logger.WithError(err).Debug("|-- wait for notification failed")
	}
	return ok, err
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
