// Package ingest reads and writes time-tagged event lists as CSV.
//
// The format is one event per line, "time,channel[,dead_time]", with an
// optional column header. Times are absolute (mission elapsed time). Leading
// comment lines may carry "key=value" metadata:
//
//	# trigtime=243216766.614
//	# tstart=243216700
//	# tstop=243216900
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/okian/spectre/internal/adapters/repository"
	"github.com/okian/spectre/internal/domain/model"
)

// Metadata keys recognised in header comments.
const (
	keyTriggerTime = "trigtime"
	keyStart       = "tstart"
	keyStop        = "tstop"
)

// Reference is the epoch event times are made relative to.
type Reference struct {
	Time float64
	// Defaulted is set when neither the caller nor the input supplied a
	// trigger time and zero was used.
	Defaulted bool
}

// Header is the metadata of an event list, in absolute time.
type Header struct {
	TriggerTime *float64
	Start       *float64
	Stop        *float64
}

// Dataset is a parsed event list with times relative to Reference.
type Dataset struct {
	Times     []float64
	Channels  []int
	DeadTimes []float64
	NChannels int
	Reference Reference

	// Observation window relative to Reference, when the input declares one.
	WindowStart float64
	WindowStop  float64
	HasWindow   bool
}

// Len returns the number of events.
func (d *Dataset) Len() int { return len(d.Times) }

// Store builds the event store for the dataset.
func (d *Dataset) Store() (*repository.EventStore, error) {
	var opts []repository.Option
	if d.HasWindow {
		opts = append(opts, repository.WithObservationWindow(d.WindowStart, d.WindowStop))
	}
	return repository.FromArrays(d.Times, d.Channels, d.DeadTimes, d.NChannels, opts...)
}

// ReadCSV parses an event list.
func ReadCSV(r io.Reader, opts ...Option) (*Dataset, error) {
	o := newOptions(opts)
	br := bufio.NewReader(r)

	header, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		abs       []float64
		channels  []int
		deadTimes []float64
		hasDead   bool
		maxChan   = -1
		first     = true
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
				continue
			}
		}

		if len(rec) < 2 || len(rec) > 3 {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformedRecord, line, len(rec))
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: line %d: time %q", ErrMalformedRecord, line, rec[0])
		}
		ch, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil || ch < 0 {
			return nil, fmt.Errorf("%w: line %d: channel %q", ErrMalformedRecord, line, rec[1])
		}
		if o.nChannels > 0 && ch >= o.nChannels {
			return nil, fmt.Errorf("%w: line %d: channel %d not in [0, %d)", ErrMalformedRecord, line, ch, o.nChannels)
		}

		if len(rec) == 3 {
			dt, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
			if err != nil || !(dt >= 0) {
				return nil, fmt.Errorf("%w: line %d: dead time %q", ErrMalformedRecord, line, rec[2])
			}
			if !hasDead && len(abs) > 0 {
				return nil, fmt.Errorf("%w: line %d: dead time column appears mid-file", ErrMalformedRecord, line)
			}
			hasDead = true
			deadTimes = append(deadTimes, dt)
		} else if hasDead {
			return nil, fmt.Errorf("%w: line %d: missing dead time", ErrMalformedRecord, line)
		}

		abs = append(abs, t)
		channels = append(channels, ch)
		maxChan = max(maxChan, ch)
	}

	if len(abs) == 0 {
		return nil, ErrNoEvents
	}

	n := o.nChannels
	if n == 0 {
		n = maxChan + 1
	}
	if !hasDead {
		deadTimes = DeadTimes(channels, n, o.deadTimeNormal, o.deadTimeOverflow)
	}

	ref := ResolveReference(o.triggerTime, header.TriggerTime)
	times := make([]float64, len(abs))
	for i, t := range abs {
		times[i] = t - ref.Time
	}

	ds := &Dataset{
		Times:     times,
		Channels:  channels,
		DeadTimes: deadTimes,
		NChannels: n,
		Reference: ref,
	}
	if header.Start != nil && header.Stop != nil {
		ds.WindowStart = *header.Start - ref.Time
		ds.WindowStop = *header.Stop - ref.Time
		ds.HasWindow = true
	}
	return ds, nil
}

// ResolveReference picks the reference epoch: an explicit override first,
// then the trigger time of the input, else zero flagged as Defaulted.
func ResolveReference(override, fromInput *float64) Reference {
	switch {
	case override != nil:
		return Reference{Time: *override}
	case fromInput != nil:
		return Reference{Time: *fromInput}
	default:
		return Reference{Defaulted: true}
	}
}

// DeadTimes charges every event the normal dead time except events in the
// overflow channel, the last of nChannels.
func DeadTimes(channels []int, nChannels int, normal, overflow float64) []float64 {
	out := make([]float64, len(channels))
	for i, ch := range channels {
		if ch == nChannels-1 {
			out[i] = overflow
		} else {
			out[i] = normal
		}
	}
	return out
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	for {
		b, err := br.Peek(1)
		if err != nil || b[0] != '#' {
			return h, nil
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return h, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
		}

		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		key, val, ok := strings.Cut(body, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key != keyTriggerTime && key != keyStart && key != keyStop {
			continue
		}
		v, perr := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if perr != nil {
			return h, fmt.Errorf("%w: %s=%q", ErrMalformedHeader, key, strings.TrimSpace(val))
		}
		switch key {
		case keyTriggerTime:
			h.TriggerTime = &v
		case keyStart:
			h.Start = &v
		case keyStop:
			h.Stop = &v
		}
		if errors.Is(err, io.EOF) {
			return h, nil
		}
	}
}

// WriteCSV writes events in the format ReadCSV reads. Event times are
// written as given.
func WriteCSV(w io.Writer, h Header, events []model.Event) error {
	bw := bufio.NewWriter(w)
	meta := []struct {
		key string
		val *float64
	}{{keyTriggerTime, h.TriggerTime}, {keyStart, h.Start}, {keyStop, h.Stop}}
	for _, m := range meta {
		if m.val == nil {
			continue
		}
		if _, err := fmt.Fprintf(bw, "# %s=%s\n", m.key, strconv.FormatFloat(*m.val, 'f', -1, 64)); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write([]string{"time", "channel", "dead_time"}); err != nil {
		return err
	}
	for _, e := range events {
		rec := []string{
			strconv.FormatFloat(e.Time, 'f', -1, 64),
			strconv.Itoa(e.Channel),
			strconv.FormatFloat(e.DeadTime, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
