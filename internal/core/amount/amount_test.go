package amount

import "testing"

import "github.com/stretchr/testify/require"

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0.000000"},
		{"1", "1.000000"},
		{"-1", "-1.000000"},
		{"12.5", "12.500000"},
		{"0.000001", "0.000001"},
		{"inf", "inf"},
	}
	for _, c := range cases {
		a, err := Parse(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, a.String())
	}
}

func TestInfPropagation(t *testing.T) {
	five, _ := Parse("5")
	require.True(t, Inf.Add(five).IsInf())
	require.True(t, five.Add(Inf).IsInf())
	require.Equal(t, 1, Inf.Cmp(five))
	require.Equal(t, -1, five.Cmp(Inf))
	require.Equal(t, 0, Inf.Cmp(Inf))
}

func TestArithmetic(t *testing.T) {
	a, _ := Parse("10")
	b, _ := Parse("4")
	require.Equal(t, "14.000000", a.Add(b).String())
	require.Equal(t, "6.000000", a.Sub(b).String())
	require.Equal(t, "-10.000000", a.Neg().String())
	require.Equal(t, "-40.000000", a.MulInt(-4).String())
}

func TestScaleBoundary(t *testing.T) {
	a, _ := Parse("3.5")
	units := a.ScaleToInt()
	require.Equal(t, int64(3_500_000), units)
	back := UnscaleFromInt(units)
	require.True(t, a.Equal(back))
}

func TestScaleToIntPanicsOnInf(t *testing.T) {
	require.Panics(t, func() { Inf.ScaleToInt() })
}

func TestZeroAndSign(t *testing.T) {
	require.True(t, Zero.IsZero())
	require.Equal(t, 0, Zero.Sign())
	neg, _ := Parse("-2")
	require.Equal(t, -1, neg.Sign())
	require.Equal(t, 1, Inf.Sign())
}
