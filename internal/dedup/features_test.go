package dedup

import (
	"testing"
)

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "ABC def", want: "abcdef"},
		{name: "unifies tai variant", in: "台北市", want: "臺北市"},
		{name: "strips punctuation", in: "中山北路，二段！", want: "中山北路二段"},
		{name: "strips whitespace", in: "  信義區  松仁路 ", want: "信義區松仁路"},
		{name: "empty", in: "", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizeText(tc.in); got != tc.want {
				t.Fatalf("normalizeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCoarseAddressKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "drops floor suffix", in: "中山北路二段45號3樓", want: "中山北路二段號"},
		{name: "drops house number", in: "松仁路100號", want: "松仁路號"},
		{name: "floor variants collapse", in: "中山北路二段45號5樓", want: "中山北路二段號"},
		{name: "empty", in: "", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := coarseAddressKey(tc.in); got != tc.want {
				t.Fatalf("coarseAddressKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCoarseAddressKeyCapsLength(t *testing.T) {
	t.Parallel()

	long := ""
	for i := 0; i < 40; i++ {
		long += "路"
	}
	got := coarseAddressKey(long)
	if n := len([]rune(got)); n != addressKeyMaxRunes {
		t.Fatalf("key length = %d runes, want %d", n, addressKeyMaxRunes)
	}
}

func TestTokenSet(t *testing.T) {
	t.Parallel()

	set := tokenSet("信義區 2房 near MRT101")
	for _, want := range []string{"信", "義", "區", "2", "房", "near", "mrt101"} {
		if _, ok := set[want]; !ok {
			t.Fatalf("token %q missing from %v", want, set)
		}
	}
	if tokenSet("") != nil {
		t.Fatalf("empty input should produce nil set")
	}
}

func TestOverlapCoefficient(t *testing.T) {
	t.Parallel()

	a := tokenSet("信義區豪宅")
	b := tokenSet("信義區豪宅出租中")
	if got := overlapCoefficient(a, b); got != 1.0 {
		t.Fatalf("contained set overlap = %v, want 1.0", got)
	}

	c := tokenSet("大安區公寓")
	if got := overlapCoefficient(a, c); got >= 0.5 {
		t.Fatalf("disjoint-ish overlap = %v, want < 0.5", got)
	}

	if got := overlapCoefficient(nil, b); got != 0 {
		t.Fatalf("nil set overlap = %v, want 0", got)
	}
}
