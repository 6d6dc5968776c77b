package memory

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "edo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddTurnPersistsInOrder(t *testing.T) {
	s := openTestStore(t)
	s.AddTurn(RoleUser, "おはよう", 20)
	s.AddTurn(RoleAssistant, "おはよう！", 20)
	s.Flush()

	turns, err := s.RecentTurns(10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "おはよう", turns[0].Text)
	assert.Equal(t, RoleAssistant, turns[1].Role)
}

func TestAddTurnTrimsOldestBeyondLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 10; i++ {
		s.AddTurn(RoleUser, fmt.Sprintf("発言-%d", i), 4)
	}
	s.Flush()

	turns, err := s.RecentTurns(100)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "発言-6", turns[0].Text)
	assert.Equal(t, "発言-9", turns[3].Text)
}

func TestEmptyTurnIgnored(t *testing.T) {
	s := openTestStore(t)
	s.AddTurn("", "内容", 10)
	s.AddTurn(RoleUser, "", 10)
	s.Flush()

	turns, err := s.RecentTurns(10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSummaryRoundTripAndTruncation(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Summary()
	require.NoError(t, err)
	assert.Empty(t, got)

	long := strings.Repeat("あ", 100)
	s.SetSummary(long, 10)
	s.Flush()

	got, err = s.Summary()
	require.NoError(t, err)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))

	s.SetSummary("短い要約", 800)
	s.Flush()
	got, err = s.Summary()
	require.NoError(t, err)
	assert.Equal(t, "短い要約", got)
}

func TestCounters(t *testing.T) {
	s := openTestStore(t)

	v, err := s.Counter("turns_completed")
	require.NoError(t, err)
	assert.Zero(t, v)

	s.IncCounter("turns_completed", 1)
	s.IncCounter("turns_completed", 2)
	s.Flush()

	v, err = s.Counter("turns_completed")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestFactsUpsertAndTrim(t *testing.T) {
	s := openTestStore(t)
	s.AddFact("コーヒーが好き", 10)
	s.AddFact("コーヒーが好き", 10)
	s.AddFact("猫を飼っている", 10)
	s.Flush()

	facts, err := s.Facts(10)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "コーヒーが好き", facts[0], "reinforced fact comes first")

	for i := 0; i < 5; i++ {
		s.AddFact(fmt.Sprintf("事実-%d", i), 3)
	}
	s.Flush()

	facts, err = s.Facts(100)
	require.NoError(t, err)
	assert.Len(t, facts, 3)
}

func TestUserName(t *testing.T) {
	s := openTestStore(t)

	name, err := s.UserName()
	require.NoError(t, err)
	assert.Empty(t, name)

	s.SetUserName("たろう")
	s.Flush()

	name, err = s.UserName()
	require.NoError(t, err)
	assert.Equal(t, "たろう", name)
}

func TestSensorReadingPersisted(t *testing.T) {
	s := openTestStore(t)
	temp := 24.5
	hum := 55.0
	s.AddSensorReading(SensorReading{
		Source:      "remo",
		DeviceID:    "dev-1",
		DeviceName:  "リビング",
		Temperature: &temp,
		Humidity:    &hum,
		EventTime:   "2026-08-30T12:00:00Z",
	})
	s.Flush()

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sensor_readings`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "edo.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NotPanics(t, func() {
		s.SetSummary("遅れて届いた要約", 800)
		s.AddFact("遅れて届いた事実", 10)
		s.AddTurn(RoleUser, "遅い発言", 10)
		s.IncCounter("turns_completed", 1)
	})
	require.NoError(t, s.Close(), "close is idempotent")
}

func TestSnapshotDump(t *testing.T) {
	s := openTestStore(t)
	s.AddTurn(RoleUser, "こんにちは", 20)
	s.SetSummary("挨拶をした", 800)
	s.SetUserName("たろう")
	s.Flush()

	snap, err := s.Snapshot(20)
	require.NoError(t, err)
	assert.Equal(t, "挨拶をした", snap["summary"])
	assert.Contains(t, snap, "conversation")
	assert.Contains(t, snap, "profile")
}
