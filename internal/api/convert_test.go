package api

import (
	"testing"
	"time"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"32.53", 32.53},
		{" 4.85 ", 4.85},
		{"0", 0},
		{"", 0},
		{"abc", 0},
	}

	for _, tt := range tests {
		if got := ParsePrice(tt.input); got != tt.want {
			t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseMillis(t *testing.T) {
	if !ParseMillis(0).IsZero() {
		t.Error("ParseMillis(0) should be zero time")
	}
	got := ParseMillis(1700000000123)
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	if got.UnixMilli() != 1700000000123 {
		t.Errorf("UnixMilli = %d, want 1700000000123", got.UnixMilli())
	}
}

func TestTickToModel(t *testing.T) {
	tick := TickToModel(APITick{Bid: "10.00", Ask: "10.02", Last: "", Volume: 5, TimeMsc: 1700000000000})
	if tick.Bid != 10 || tick.Ask != 10.02 || tick.Last != 0 {
		t.Errorf("tick = %+v", tick)
	}
	if !tick.Valid() {
		t.Error("tick with positive bid should be valid")
	}
}

func TestBarToModel(t *testing.T) {
	bar := BarToModel(APIBar{Time: 1700000000, Open: "1", High: "2", Low: "0.5", Close: "1.5", TickVolume: 9})
	if bar.Open != 1 || bar.High != 2 || bar.Low != 0.5 || bar.Close != 1.5 || bar.Volume != 9 {
		t.Errorf("bar = %+v", bar)
	}
	if bar.Timestamp.Unix() != 1700000000 {
		t.Errorf("Timestamp = %v", bar.Timestamp)
	}
	if !BarToModel(APIBar{}).Timestamp.IsZero() {
		t.Error("zero bar time should map to zero timestamp")
	}
}
