package utils_test

import (
	"testing"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/utils"
)

func TestCalendarDaysBetween(t *testing.T) {
	cases := []struct {
		name string
		a, b time.Time
		want int
	}{
		{
			name: "same day different hours",
			a:    time.Date(2026, 8, 15, 1, 0, 0, 0, time.UTC),
			b:    time.Date(2026, 8, 15, 23, 0, 0, 0, time.UTC),
			want: 0,
		},
		{
			name: "across midnight counts one day",
			a:    time.Date(2026, 8, 14, 23, 59, 0, 0, time.UTC),
			b:    time.Date(2026, 8, 15, 0, 1, 0, 0, time.UTC),
			want: 1,
		},
		{
			name: "negative when b precedes a",
			a:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
			b:    time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC),
			want: -3,
		},
		{
			name: "month boundary",
			a:    time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
			b:    time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
			want: 3,
		},
	}
	for _, tc := range cases {
		if got := utils.CalendarDaysBetween(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestIsValidCNPJ(t *testing.T) {
	valid := []string{"11222333000181", "11.222.333/0001-81", "11444777000161"}
	for _, v := range valid {
		if !utils.IsValidCNPJ(v) {
			t.Errorf("expected %q to be valid", v)
		}
	}
	invalid := []string{"", "11222333000180", "11111111111111", "1122233300018", "abc"}
	for _, v := range invalid {
		if utils.IsValidCNPJ(v) {
			t.Errorf("expected %q to be invalid", v)
		}
	}
}

func TestIsValidCPF(t *testing.T) {
	valid := []string{"52998224725", "529.982.247-25", "11144477735"}
	for _, v := range valid {
		if !utils.IsValidCPF(v) {
			t.Errorf("expected %q to be valid", v)
		}
	}
	invalid := []string{"", "52998224724", "00000000000", "5299822472", "52998224725x1"}
	for _, v := range invalid {
		if utils.IsValidCPF(v) {
			t.Errorf("expected %q to be invalid", v)
		}
	}
}
