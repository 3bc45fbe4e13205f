package money

import "testing"

func TestParseRate(t *testing.T) {
	tests := []struct {
		name    string
		decimal string
		want    Rate
		wantErr bool
	}{
		{"unit rate", "1", Rate(100000000), false},
		{"1.01", "1.01", Rate(101000000), false},
		{"full precision", "1.00000001", Rate(100000001), false},
		{"small", "0.5", Rate(50000000), false},
		{"zero", "0", 0, true},
		{"negative", "-1.01", 0, true},
		{"garbage", "1.0.1", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRate(tt.decimal)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRateDecimalRoundTrip(t *testing.T) {
	for _, s := range []string{"1.00000000", "1.01000000", "0.99887700"} {
		r, err := ParseRate(s)
		if err != nil {
			t.Fatalf("ParseRate(%q) error = %v", s, err)
		}
		if got := r.Decimal(); got != s {
			t.Errorf("Decimal() = %q, want %q", got, s)
		}
	}
}

func TestRateEqualIsExact(t *testing.T) {
	a, _ := ParseRate("1.01")
	b, _ := ParseRate("1.01000000")
	c, _ := ParseRate("1.01000001")

	if !a.Equal(b) {
		t.Error("equal rates reported unequal")
	}
	if a.Equal(c) {
		t.Error("rates differing by one scale unit reported equal")
	}
}
