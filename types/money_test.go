package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Money
		want Money
	}{
		{"Add", EUR(6000).Add(EUR(4000)), EUR(10000)},
		{"Sub", EUR(10000).Sub(EUR(6000)), EUR(4000)},
		{"Times", EUR(1250).Times(3), EUR(3750)},
		{"Neg", EUR(100).Neg(), EUR(-100)},
		{"Percent exact", EUR(10000).Percent(22), EUR(2200)},
		{"Percent rounds half up", EUR(1250).Percent(22), EUR(275)},
		{"Percent negative", EUR(-1250).Percent(22), EUR(-275)},
		{"Sum", Sum("eur", EUR(1), EUR(2), EUR(3)), EUR(6)},
		{"Sum empty", Sum("eur"), EUR(0)},
		{"Min", EUR(5).Min(EUR(3)), EUR(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestCheckedArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		op     func() (Money, bool)
		want   Money
		wantOK bool
	}{
		{"Times", func() (Money, bool) { return EUR(1250).CheckedTimes(3) }, EUR(3750), true},
		{"Times wraps", func() (Money, bool) { return EUR(6148914691236517206).CheckedTimes(3) }, Money{}, false},
		{"Times min by -1", func() (Money, bool) { return EUR(math.MinInt64).CheckedTimes(-1) }, Money{}, false},
		{"Percent", func() (Money, bool) { return EUR(1250).CheckedPercent(22) }, EUR(275), true},
		{"Percent wraps", func() (Money, bool) { return EUR(math.MaxInt64 / 50).CheckedPercent(100) }, Money{}, false},
		{"Percent rounding edge", func() (Money, bool) { return EUR(math.MaxInt64 - 10).CheckedPercent(1) }, Money{}, false},
		{"Add", func() (Money, bool) { return EUR(1).CheckedAdd(EUR(2)) }, EUR(3), true},
		{"Add wraps", func() (Money, bool) { return EUR(math.MaxInt64).CheckedAdd(EUR(1)) }, Money{}, false},
		{"Add wraps negative", func() (Money, bool) { return EUR(math.MinInt64).CheckedAdd(EUR(-1)) }, Money{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.op()
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("got %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMoneyCompare(t *testing.T) {
	if !EUR(1).LessThan(EUR(2)) || EUR(2).LessThan(EUR(2)) {
		t.Error("LessThan")
	}
	if !EUR(3).GreaterThan(EUR(2)) || EUR(2).GreaterThan(EUR(2)) {
		t.Error("GreaterThan")
	}
	if EUR(2).Cmp(EUR(2)) != 0 {
		t.Error("Cmp equal")
	}
	if !EUR(0).IsZero() || !EUR(1).IsPositive() || !EUR(-1).IsNegative() {
		t.Error("sign predicates")
	}
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on currency mismatch")
		}
	}()
	_ = EUR(100).Add(New(100, "usd"))
}

func TestMoneyFormat(t *testing.T) {
	tests := []struct {
		m     Money
		major string
		str   string
	}{
		{EUR(19900), "199.00", "€199.00"},
		{EUR(5), "0.05", "€0.05"},
		{EUR(-1050), "-10.50", "€-10.50"},
		{New(100, "JPY"), "100", "JPY 100"},
		{New(4900, "usd"), "49.00", "$49.00"},
	}
	for _, tt := range tests {
		if got := tt.m.FormatMajor(); got != tt.major {
			t.Errorf("FormatMajor(%d %s) = %q, want %q", tt.m.Amount, tt.m.Currency, got, tt.major)
		}
		if got := tt.m.String(); got != tt.str {
			t.Errorf("String(%d %s) = %q, want %q", tt.m.Amount, tt.m.Currency, got, tt.str)
		}
	}
}

func TestParseMajor(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"60", 6000, false},
		{"60.5", 6050, false},
		{"60,50", 6050, false},
		{" 0.01 ", 1, false},
		{"-3.20", -320, false},
		{"1.234", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMajor(tt.in, "EUR")
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMajor(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMajor(%q): %v", tt.in, err)
			continue
		}
		if got != EUR(tt.want) {
			t.Errorf("ParseMajor(%q) = %v, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(EUR(4000))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"amount":4000,"currency":"eur","display":"€40.00"}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}

	var obj Money
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatal(err)
	}
	if obj != EUR(4000) {
		t.Errorf("object form = %v", obj)
	}

	var bare Money
	if err := json.Unmarshal([]byte(`2500`), &bare); err != nil {
		t.Fatal(err)
	}
	if bare.Amount != 2500 || bare.Currency != "" {
		t.Errorf("bare form = %+v", bare)
	}

	if err := json.Unmarshal([]byte(`"12"`), &bare); err == nil {
		t.Error("expected error for string amount")
	}
}
