package perf_test

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"codeberg.org/nexustouch/perfd/internal/perf"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreAutoStartsFull(t *testing.T) {
	s := perf.NewStore(perf.ModeAuto)
	assert.Equal(t, perf.ModeAuto, s.Selected())
	assert.Equal(t, perf.ModeFull, s.Active())
	assert.Equal(t, perf.ModeFull, s.State().PreviousMode)

	s = perf.NewStore(perf.ModeReduced)
	assert.Equal(t, perf.ModeReduced, s.Selected())
	assert.Equal(t, perf.ModeReduced, s.Active())
}

func TestStoreIgnoresControllerUnlessAuto(t *testing.T) {
	s := perf.NewStore(perf.ModeFull)
	c := perf.NewController(perf.DefaultPolicy())

	d := s.ObserveLatency(c, time.Second, epoch)
	assert.False(t, d.Changed)
	for i := 0; i < 5; i++ {
		d = s.Evaluate(c, snapshot(10, 0), epoch.Add(time.Duration(i)*time.Second))
		assert.False(t, d.Changed)
		assert.Equal(t, perf.ModeMinimal, d.Suggested)
	}
	assert.Equal(t, perf.ModeFull, s.Active())
}

func TestStoreSelectAndSubscribe(t *testing.T) {
	s := perf.NewStore(perf.ModeReduced)
	c := perf.NewController(perf.DefaultPolicy())
	changes, cancel := s.Subscribe()
	defer cancel()

	s.Select(perf.ModeAuto, epoch)
	got := <-changes
	want := perf.Change{
		From:     perf.ModeReduced,
		To:       perf.ModeReduced,
		Selected: perf.ModeAuto,
		Reason:   perf.ReasonSelected,
		At:       epoch,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("select auto (-want +got):\n%s", diff)
	}
	assert.Equal(t, perf.ModeReduced, s.State().PreviousMode)

	s.ObserveLatency(c, 300*time.Millisecond, epoch.Add(time.Second))
	got = <-changes
	assert.Equal(t, perf.ModeMinimal, got.To)
	assert.Equal(t, perf.ReasonLatencySpike, got.Reason)
	assert.Equal(t, perf.ModeMinimal, s.Active())

	s.Select(perf.ModeFull, epoch.Add(2*time.Second))
	got = <-changes
	assert.Equal(t, perf.ModeMinimal, got.From)
	assert.Equal(t, perf.ModeFull, got.To)
	assert.Equal(t, perf.ModeFull, s.Active())

	s.Select(perf.ModeFull, epoch.Add(3*time.Second))
	select {
	case c := <-changes:
		t.Fatalf("unexpected change %+v", c)
	default:
	}
}

func TestStoreSlowSubscriberKeepsLatest(t *testing.T) {
	s := perf.NewStore(perf.ModeFull)
	changes, cancel := s.Subscribe()

	modes := []perf.Mode{perf.ModeReduced, perf.ModeMinimal}
	for i := 0; i < 20; i++ {
		s.Select(modes[i%2], epoch.Add(time.Duration(i)*time.Second))
	}

	var last perf.Change
	for len(changes) > 0 {
		last = <-changes
	}
	assert.Equal(t, perf.ModeMinimal, last.To)
	assert.Equal(t, epoch.Add(19*time.Second), last.At)

	cancel()
	cancel()
	_, open := <-changes
	assert.False(t, open)
}

func TestStoreClose(t *testing.T) {
	s := perf.NewStore(perf.ModeAuto)
	changes, cancel := s.Subscribe()
	s.Close()
	cancel()

	_, open := <-changes
	assert.False(t, open)

	late, _ := s.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestModeText(t *testing.T) {
	for _, m := range []perf.Mode{perf.ModeFull, perf.ModeReduced, perf.ModeMinimal, perf.ModeAuto} {
		parsed, err := perf.ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err := perf.ParseMode("turbo")
	require.Error(t, err)

	parsed, err := perf.ParseMode(" Minimal ")
	require.NoError(t, err)
	assert.Equal(t, perf.ModeMinimal, parsed)

	b, err := json.Marshal(struct {
		Mode perf.Mode `json:"mode"`
	}{perf.ModeReduced})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"reduced"}`, string(b))
}

func TestOptionalJSON(t *testing.T) {
	snap := perf.Snapshot{MemoryUsage: perf.Some(12.5)}
	b, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, 12.5, decoded["memory_usage"])
	assert.Nil(t, decoded["battery"])

	var back perf.Snapshot
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 12.5, back.MemoryUsage.OrElse(0))
	assert.False(t, back.Battery.IsSupported())
}

func TestStoreApply(t *testing.T) {
	s := perf.NewStore(perf.ModeAuto)
	changes, cancel := s.Subscribe()
	defer cancel()

	stale := perf.Decision{Changed: true, From: perf.ModeReduced, To: perf.ModeMinimal, Reason: perf.ReasonSustainedIssues}
	assert.False(t, s.Apply(stale, epoch))

	d := perf.Decision{Changed: true, From: perf.ModeFull, To: perf.ModeReduced, Reason: perf.ReasonSustainedIssues}
	require.True(t, s.Apply(d, epoch))
	assert.Equal(t, perf.ModeReduced, s.Active())
	assert.Equal(t, epoch, s.State().LastChange)
	assert.Equal(t, perf.ModeReduced, (<-changes).To)

	s.Select(perf.ModeFull, epoch)
	<-changes
	d = perf.Decision{Changed: true, From: perf.ModeFull, To: perf.ModeMinimal, Reason: perf.ReasonLatencySpike}
	assert.False(t, s.Apply(d, epoch), "explicit selection ignores controller decisions")
	assert.Equal(t, perf.ModeFull, s.Active())
}

func TestStoreReselectingAutoKeepsCooldown(t *testing.T) {
	s := perf.NewStore(perf.ModeAuto)
	c := perf.NewController(perf.DefaultPolicy())

	d := s.ObserveLatency(c, 250*time.Millisecond, epoch)
	require.True(t, d.Changed)
	assert.Equal(t, perf.ModeMinimal, s.Active())

	s.Select(perf.ModeMinimal, epoch.Add(500*time.Millisecond))
	s.Select(perf.ModeAuto, epoch.Add(time.Second))
	assert.Equal(t, epoch, s.State().LastChange)
	assert.Equal(t, 0, s.State().ConsecutiveIssues)
	assert.Equal(t, perf.ModeMinimal, s.State().PreviousMode)

	d = s.Evaluate(c, snapshot(60, 10*time.Millisecond), epoch.Add(2*time.Second))
	assert.False(t, d.Changed)
	assert.Equal(t, perf.ModeMinimal, s.Active())

	d = s.Evaluate(c, snapshot(60, 10*time.Millisecond), epoch.Add(11*time.Second))
	assert.True(t, d.Changed)
	assert.Equal(t, perf.ModeReduced, d.To)
}

func TestStoreControllerChangesRespectCooldownAcrossSelections(t *testing.T) {
	policy := perf.DefaultPolicy()
	c := perf.NewController(policy)
	rng := rand.New(rand.NewSource(7))
	tiers := []perf.Mode{perf.ModeFull, perf.ModeReduced, perf.ModeMinimal}

	for run := 0; run < 50; run++ {
		s := perf.NewStore(perf.ModeAuto)
		var changes []time.Time
		now := epoch

		for step := 0; step < 400; step++ {
			now = now.Add(time.Duration(100+rng.Intn(3000)) * time.Millisecond)
			var d perf.Decision
			switch rng.Intn(6) {
			case 0:
				s.Select(tiers[rng.Intn(len(tiers))], now)
				s.Select(perf.ModeAuto, now)
				continue
			case 1, 2:
				d = s.ObserveLatency(c, time.Duration(rng.Intn(400))*time.Millisecond, now)
			default:
				snap := snapshot(float64(10+rng.Intn(55)), time.Duration(rng.Intn(200))*time.Millisecond)
				d = s.Evaluate(c, snap, now)
			}
			if d.Changed {
				changes = append(changes, now)
			}
		}

		for i := 1; i < len(changes); i++ {
			assert.GreaterOrEqual(t, changes[i].Sub(changes[i-1]), policy.Cooldown)
		}
	}
}
