package consensus

import (
	"testing"
	"time"

	cstypes "bftchain/consensus/types"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

func TestTimeoutTickerFires(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	tt := NewTimeoutTicker()
	tt.SetLogger(log.TestingLogger())
	require.NoError(t, tt.Start())
	defer tt.Stop() //nolint:errcheck

	tt.ScheduleTimeout(timeoutInfo{10 * time.Millisecond, 1, 0, cstypes.RoundStepPropose})

	select {
	case ti := <-tt.Chan():
		require.EqualValues(t, 1, ti.Height)
		require.EqualValues(t, 0, ti.Round)
		require.Equal(t, cstypes.RoundStepPropose, ti.Step)
	case <-time.After(time.Second):
		t.Fatal("expected timeout to fire")
	}
}

// Scheduling a newer (height, round, step) replaces the pending timeout:
// only the most recent schedule fires.
func TestTimeoutTickerReplacesPending(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	tt := NewTimeoutTicker()
	tt.SetLogger(log.TestingLogger())
	require.NoError(t, tt.Start())
	defer tt.Stop() //nolint:errcheck

	// long timeout, then a newer round with a short one
	tt.ScheduleTimeout(timeoutInfo{10 * time.Second, 1, 0, cstypes.RoundStepPropose})
	tt.ScheduleTimeout(timeoutInfo{10 * time.Millisecond, 1, 1, cstypes.RoundStepPropose})

	select {
	case ti := <-tt.Chan():
		require.EqualValues(t, 1, ti.Round, "the most recent schedule must fire")
	case <-time.After(time.Second):
		t.Fatal("expected replaced timeout to fire quickly")
	}

	// nothing else fires
	select {
	case ti := <-tt.Chan():
		t.Fatalf("only one timeout should fire, got %v", ti)
	case <-time.After(100 * time.Millisecond):
	}
}

// Timeouts for an older height/round/step than the pending one are dropped.
func TestTimeoutTickerIgnoresStaleSchedules(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	tt := NewTimeoutTicker()
	tt.SetLogger(log.TestingLogger())
	require.NoError(t, tt.Start())
	defer tt.Stop() //nolint:errcheck

	tt.ScheduleTimeout(timeoutInfo{20 * time.Millisecond, 2, 5, cstypes.RoundStepPrecommitWait})
	// older round: ignored, does not replace the pending timeout
	tt.ScheduleTimeout(timeoutInfo{time.Millisecond, 2, 4, cstypes.RoundStepPropose})

	select {
	case ti := <-tt.Chan():
		require.EqualValues(t, 5, ti.Round)
		require.Equal(t, cstypes.RoundStepPrecommitWait, ti.Step)
	case <-time.After(time.Second):
		t.Fatal("expected pending timeout to fire")
	}
}
