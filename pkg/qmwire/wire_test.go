package qmwire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmsource"
)

func roundTrip(t *testing.T, l qmexpr.Literal) qmexpr.Literal {
	t.Helper()
	env, err := EncodeLiteral(l)
	require.NoError(t, err)
	out, err := DecodeLiteral(env)
	require.NoError(t, err)
	return out
}

func TestLiteralRoundTripsPrimitives(t *testing.T) {
	cases := []qmexpr.Literal{
		qmexpr.NullLiteral(),
		qmexpr.BoolLiteral(true),
		qmexpr.IntLiteral(42),
		qmexpr.FloatLiteral(3.5),
		qmexpr.StrLiteral("hello"),
		qmexpr.ListLiteral(qmexpr.IntLiteral(1), qmexpr.IntLiteral(2)),
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		assert.Equal(t, c.Kind, got.Kind)
	}
}

func TestLiteralRoundTripsDateTimeTypes(t *testing.T) {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := roundTrip(t, qmexpr.DateLiteral(d))
	assert.True(t, got.Date.Equal(d))

	dt := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	got = roundTrip(t, qmexpr.DateTimeLiteral(dt))
	assert.True(t, got.DateTime.Equal(dt))

	got = roundTrip(t, qmexpr.TimedeltaLiteral(90))
	assert.Equal(t, int64(90), got.Timedelta)

	got = roundTrip(t, qmexpr.TimeIntervalLiteral(qmexpr.UnitMonths, 3))
	assert.Equal(t, qmexpr.UnitMonths, got.TimeInterval.Unit)
	assert.Equal(t, 3, got.TimeInterval.Num)
}

func TestDecodeLiteralRejectsVersionMismatch(t *testing.T) {
	env, err := EncodeLiteral(qmexpr.IntLiteral(1))
	require.NoError(t, err)
	env.Version = FormatVersion + 1
	_, err = DecodeLiteral(env)
	assert.Error(t, err, "expected a version mismatch error")
}

func TestCanonicalSourceBytesIsStableAndDiscriminatesKind(t *testing.T) {
	a := qmsource.Table("events")
	b := qmsource.Table("events")

	bytesA, err := CanonicalSourceBytes(a)
	require.NoError(t, err)
	bytesB, err := CanonicalSourceBytes(b)
	require.NoError(t, err)
	assert.Equal(t, string(bytesA), string(bytesB), "expected identical tables to canonicalize the same")

	other := qmsource.Table("other_events")
	bytesOther, err := CanonicalSourceBytes(other)
	require.NoError(t, err)
	assert.NotEqual(t, string(bytesA), string(bytesOther), "expected distinct table names to canonicalize differently")
}
