package conversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradenorm/internal/catalog"
	id "gradenorm/pkg/domain"
	dErrors "gradenorm/pkg/domain-errors"
)

func mustSystem(t *testing.T, sysID string) catalog.System {
	t.Helper()
	system, err := catalog.Default().Require(sysID)
	require.NoError(t, err)
	return system
}

func TestRescaleNumeric(t *testing.T) {
	arg := mustSystem(t, "ARG_1_10")
	za := mustSystem(t, "ZA")

	t.Run("linear rescale", func(t *testing.T) {
		out, err := Rescale(arg, za, id.NumericGrade(8))
		require.NoError(t, err)
		assert.InDelta(t, 77.78, out.Numeric, 0.01)
	})

	t.Run("round trip returns the original value", func(t *testing.T) {
		there, err := Rescale(arg, za, id.NumericGrade(8))
		require.NoError(t, err)
		back, err := Rescale(za, arg, there)
		require.NoError(t, err)
		assert.InDelta(t, 8, back.Numeric, 1e-9)
	})

	t.Run("bounds map to bounds", func(t *testing.T) {
		lo, err := Rescale(arg, za, id.NumericGrade(1))
		require.NoError(t, err)
		assert.InDelta(t, 0, lo.Numeric, 1e-9)

		hi, err := Rescale(arg, za, id.NumericGrade(10))
		require.NoError(t, err)
		assert.InDelta(t, 100, hi.Numeric, 1e-9)
	})
}

func TestRescaleInverted(t *testing.T) {
	deu := mustSystem(t, "DEU_1_6_INVERTED")
	za := mustSystem(t, "ZA")

	t.Run("best grade maps high", func(t *testing.T) {
		out, err := Rescale(deu, za, id.NumericGrade(1))
		require.NoError(t, err)
		assert.InDelta(t, 100, out.Numeric, 1e-9)
	})

	t.Run("worst grade maps low", func(t *testing.T) {
		out, err := Rescale(deu, za, id.NumericGrade(6))
		require.NoError(t, err)
		assert.InDelta(t, 0, out.Numeric, 1e-9)
	})

	t.Run("round trip preserves inversion", func(t *testing.T) {
		there, err := Rescale(deu, za, id.NumericGrade(2))
		require.NoError(t, err)
		assert.InDelta(t, 80, there.Numeric, 1e-9)

		back, err := Rescale(za, deu, there)
		require.NoError(t, err)
		assert.InDelta(t, 2, back.Numeric, 1e-9)
	})
}

func TestRescaleOrdinal(t *testing.T) {
	letters := mustSystem(t, "USA_LETTER_A_F")
	za := mustSystem(t, "ZA")
	gcse := mustSystem(t, "GBR_GCSE")

	t.Run("labels project onto the numeric axis", func(t *testing.T) {
		out, err := Rescale(letters, za, id.LabelGrade("A"))
		require.NoError(t, err)
		assert.InDelta(t, 100, out.Numeric, 1e-9)

		out, err = Rescale(letters, za, id.LabelGrade("C"))
		require.NoError(t, err)
		assert.InDelta(t, 50, out.Numeric, 1e-9)
	})

	t.Run("numeric positions bucket into labels", func(t *testing.T) {
		out, err := Rescale(za, letters, id.NumericGrade(50))
		require.NoError(t, err)
		assert.Equal(t, "C", out.Label)

		out, err = Rescale(za, letters, id.NumericGrade(98))
		require.NoError(t, err)
		assert.Equal(t, "A", out.Label)
	})

	t.Run("ordinal to ordinal keeps relative position", func(t *testing.T) {
		out, err := Rescale(letters, gcse, id.LabelGrade("A"))
		require.NoError(t, err)
		assert.Equal(t, "9", out.Label)

		out, err = Rescale(letters, gcse, id.LabelGrade("F"))
		require.NoError(t, err)
		assert.Equal(t, "1", out.Label)
	})
}

func TestRescaleGPA(t *testing.T) {
	gpa := mustSystem(t, "USA_GPA_0_4")
	za := mustSystem(t, "ZA")

	t.Run("breakpoint table on the way out", func(t *testing.T) {
		out, err := Rescale(za, gpa, id.NumericGrade(95))
		require.NoError(t, err)
		assert.InDelta(t, 4.0, out.Numeric, 1e-9)

		out, err = Rescale(za, gpa, id.NumericGrade(85))
		require.NoError(t, err)
		assert.InDelta(t, 3.0, out.Numeric, 1e-9)

		out, err = Rescale(za, gpa, id.NumericGrade(40))
		require.NoError(t, err)
		assert.InDelta(t, 0.0, out.Numeric, 1e-9)
	})

	t.Run("linear on the way in", func(t *testing.T) {
		out, err := Rescale(gpa, za, id.NumericGrade(2))
		require.NoError(t, err)
		assert.InDelta(t, 50, out.Numeric, 1e-9)
	})
}

func TestNormalizeRejections(t *testing.T) {
	arg := mustSystem(t, "ARG_1_10")
	gpa := mustSystem(t, "USA_GPA_0_4")
	letters := mustSystem(t, "USA_LETTER_A_F")

	t.Run("value outside domain", func(t *testing.T) {
		_, err := Normalize(gpa, id.NumericGrade(4.5))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedValue))

		_, err = Normalize(arg, id.NumericGrade(0))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedValue))
	})

	t.Run("label against a numeric system", func(t *testing.T) {
		_, err := Normalize(arg, id.LabelGrade("A"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedValue))
	})

	t.Run("numeric against an ordinal system", func(t *testing.T) {
		_, err := Normalize(letters, id.NumericGrade(3))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedValue))
	})

	t.Run("label outside the scale", func(t *testing.T) {
		_, err := Normalize(letters, id.LabelGrade("Z"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedValue))
	})
}
