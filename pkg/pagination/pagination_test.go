package pagination

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   Params
		want Params
	}{
		{Params{}, Params{Limit: DefaultLimit}},
		{Params{Limit: 500, Offset: 10}, Params{Limit: MaxLimit, Offset: 10}},
		{Params{Limit: 10, Offset: -4}, Params{Limit: 10}},
	}
	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
