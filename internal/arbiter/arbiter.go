// Package arbiter turns a noisy stream of device-reported position samples
// into a single best known position for display. The acceptance rules live
// in Decide, a pure function over an explicit state record, so every
// threshold is unit-testable in isolation; Tracker folds Decide over a live
// stream and drives the recovery restart.
package arbiter

import (
	"time"

	"backend-fleettrack/internal/shared/geo"
)

const (
	// IdealAccuracyM short-circuits every other rule.
	IdealAccuracyM = 10.0
	// MaxAcceptableAccuracyM bounds the first real fix.
	MaxAcceptableAccuracyM = 100.0
	// PoorAccuracyThresholdM marks a current fix bad enough that any
	// improvement is taken.
	PoorAccuracyThresholdM = 1000.0
	// WiFiAccuracyThresholdM, with no altitude/speed/heading, indicates
	// WiFi-only positioning.
	WiFiAccuracyThresholdM = 10000.0
	// MovementThresholdM of haversine distance is treated as a genuine
	// move rather than jitter.
	MovementThresholdM = 10.0

	// WarmupSamples are accepted unconditionally so the display is not
	// blank while the receiver warms up.
	WarmupSamples = 3
	// RecoveryUpdateLimit: still worse than the WiFi threshold after this
	// many updates triggers a GPS-preferring stream restart.
	RecoveryUpdateLimit = 10

	improvementFactor = 0.7
)

// Sample is one raw device report. Altitude, speed and heading are nil when
// the positioning source did not provide them.
type Sample struct {
	Lat       float64
	Lng       float64
	Accuracy  float64
	Altitude  *float64
	Speed     *float64
	Heading   *float64
	Timestamp time.Time
}

// Fix is the currently displayed position.
type Fix struct {
	Lat       float64
	Lng       float64
	Accuracy  float64
	Timestamp time.Time
}

// State is the small record Decide reads. Updates counts every sample seen;
// BestAccuracy is the best accuracy observed so far (0 until a sample
// arrives).
type State struct {
	Current      *Fix
	Updates      int
	BestAccuracy float64
}

type Verdict int

const (
	Reject Verdict = iota
	Accept
	Warn
)

type Status string

const (
	StatusAcquiring Status = "acquiring"
	StatusImproving Status = "improving"
	StatusWiFi      Status = "wifi-positioning"
	StatusGood      Status = "good"
)

// FailedStatus builds the failed:<reason> classification for stream-level
// errors (timeout, permission denied).
func FailedStatus(reason string) Status {
	return Status("failed:" + reason)
}

type Decision struct {
	Verdict Verdict
	Status  Status
	Reason  string
}

// Decide applies the acceptance rules to one candidate sample. It never
// mutates state; rejection is a normal outcome, reflected only in the
// classification.
func Decide(candidate Sample, state State) Decision {
	// Ideal accuracy wins outright.
	if candidate.Accuracy <= IdealAccuracyM {
		return Decision{Verdict: Accept, Status: StatusGood, Reason: "ideal accuracy"}
	}

	if isWiFiOnly(candidate) {
		return Decision{Verdict: Warn, Status: StatusWiFi, Reason: "wifi-only positioning"}
	}

	if state.Updates < WarmupSamples {
		return Decision{Verdict: Accept, Status: StatusAcquiring, Reason: "warm-up window"}
	}

	if state.Current == nil {
		if candidate.Accuracy <= MaxAcceptableAccuracyM {
			return Decision{Verdict: Accept, Status: acceptedStatus(candidate.Accuracy), Reason: "first acceptable fix"}
		}
		return Decision{Verdict: Reject, Status: StatusAcquiring, Reason: "no fix yet and accuracy too poor"}
	}

	current := state.Current
	switch {
	case candidate.Accuracy < current.Accuracy*improvementFactor:
		return Decision{Verdict: Accept, Status: acceptedStatus(candidate.Accuracy), Reason: "accuracy improved >30%"}
	case current.Accuracy > PoorAccuracyThresholdM && candidate.Accuracy < current.Accuracy:
		return Decision{Verdict: Accept, Status: acceptedStatus(candidate.Accuracy), Reason: "replacing very poor fix"}
	case geo.DistanceM(current.Lat, current.Lng, candidate.Lat, candidate.Lng) > MovementThresholdM:
		return Decision{Verdict: Accept, Status: acceptedStatus(candidate.Accuracy), Reason: "moved >10m"}
	}

	return Decision{Verdict: Reject, Status: acceptedStatus(current.Accuracy), Reason: "no improvement over current fix"}
}

func acceptedStatus(accuracy float64) Status {
	if accuracy <= MaxAcceptableAccuracyM {
		return StatusGood
	}
	return StatusImproving
}

func isWiFiOnly(s Sample) bool {
	return s.Accuracy > WiFiAccuracyThresholdM && s.Altitude == nil && s.Speed == nil && s.Heading == nil
}

// RestartOptions describe how the underlying location stream should be
// reopened during recovery: GPS-preferring, no cached positions, a longer
// timeout.
type RestartOptions struct {
	HighAccuracy bool
	MaximumAge   time.Duration
	Timeout      time.Duration
}

func GPSRecoveryOptions() RestartOptions {
	return RestartOptions{HighAccuracy: true, MaximumAge: 0, Timeout: 30 * time.Second}
}

// Source is the restartable location stream feeding the tracker.
type Source interface {
	Restart(opts RestartOptions)
}

// Tracker folds Decide over a sample stream. It is single-goroutine by
// contract: the device location callback is the only producer, so no
// locking is needed.
type Tracker struct {
	state     State
	source    Source
	restarted bool
	stopped   bool
	status    Status
}

func NewTracker(source Source) *Tracker {
	return &Tracker{source: source, status: StatusAcquiring}
}

// Offer feeds one sample through the decision function and applies its
// outcome. After Stop it reports ok=false and issues no further decisions.
func (t *Tracker) Offer(s Sample) (Decision, bool) {
	if t.stopped {
		return Decision{}, false
	}

	d := Decide(s, t.state)

	t.state.Updates++
	if t.state.BestAccuracy == 0 || s.Accuracy < t.state.BestAccuracy {
		t.state.BestAccuracy = s.Accuracy
	}
	if d.Verdict == Accept {
		t.state.Current = &Fix{Lat: s.Lat, Lng: s.Lng, Accuracy: s.Accuracy, Timestamp: s.Timestamp}
	}
	t.status = d.Status

	if !t.restarted && t.source != nil &&
		t.state.Updates >= RecoveryUpdateLimit && t.state.BestAccuracy > WiFiAccuracyThresholdM {
		t.source.Restart(GPSRecoveryOptions())
		t.restarted = true
	}

	return d, true
}

// Fail records a stream-level failure (timeout, permission denied) in the
// classification without touching the current fix.
func (t *Tracker) Fail(reason string) {
	if t.stopped {
		return
	}
	t.status = FailedStatus(reason)
}

// Stop tears the tracker down; no decision or restart fires afterwards.
func (t *Tracker) Stop() {
	t.stopped = true
}

func (t *Tracker) Status() Status { return t.status }

// Current returns the best known position, or nil before the first accepted
// sample.
func (t *Tracker) Current() *Fix { return t.state.Current }
