package catalog

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLister struct {
	names []string
	err   error
	calls int
}

func (f *fakeLister) ListSymbols(ctx context.Context) ([]string, error) {
	f.calls++
	return f.names, f.err
}

func TestCatalog_Load(t *testing.T) {
	c := New(DefaultConfig(), nil)
	src := &fakeLister{names: []string{"AAA", "bbb", " CCC ", "not a ticker", "AAA"}}

	if err := c.Load(context.Background(), src); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Size() != 3 {
		t.Errorf("Size() = %d, want 3", c.Size())
	}
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		if !c.Contains(sym) {
			t.Errorf("Contains(%q) = false, want true", sym)
		}
	}
	if c.Contains("ZZZ") {
		t.Error("Contains(ZZZ) = true, want false")
	}

	got := c.Symbols()
	want := []string{"AAA", "BBB", "CCC"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Symbols()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if c.LoadedAt().IsZero() {
		t.Error("LoadedAt() should be set after Load")
	}
}

func TestCatalog_LoadReplaces(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ctx := context.Background()

	c.Load(ctx, &fakeLister{names: []string{"AAA", "BBB"}})
	if err := c.Load(ctx, &fakeLister{names: []string{"CCC"}}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Contains("AAA") || !c.Contains("CCC") {
		t.Errorf("catalog not replaced: %v", c.Symbols())
	}
}

func TestCatalog_LoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("lister error keeps previous set", func(t *testing.T) {
		c := New(DefaultConfig(), nil)
		c.Load(ctx, &fakeLister{names: []string{"AAA"}})

		err := c.Load(ctx, &fakeLister{err: errors.New("boom")})
		if err == nil {
			t.Fatal("expected error")
		}
		if !c.Contains("AAA") {
			t.Error("previous catalog should survive a failed load")
		}
	})

	t.Run("empty catalog", func(t *testing.T) {
		c := New(DefaultConfig(), nil)
		err := c.Load(ctx, &fakeLister{names: []string{"", "!!"}})
		if !errors.Is(err, ErrEmptyCatalog) {
			t.Errorf("Load() error = %v, want ErrEmptyCatalog", err)
		}
	})
}

func TestCatalog_Filter(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.Load(context.Background(), &fakeLister{names: []string{"AAA", "CCC"}})

	got := c.Filter([]string{"CCC", "BBB", "AAA"})
	if len(got) != 2 || got[0] != "CCC" || got[1] != "AAA" {
		t.Errorf("Filter() = %v, want [CCC AAA]", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "petr4", want: "PETR4"},
		{raw: "  VALE3 ", want: "VALE3"},
		{raw: "BRK.B", want: "BRK.B"},
		{raw: "ABCDEFGHIJ", want: "ABCDEFGHIJ"},
		{raw: "ABCDEFGHIJK", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "   ", wantErr: true},
		{raw: "PETR-4", wantErr: true},
		{raw: "PETR 4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTicker) {
					t.Errorf("Normalize(%q) error = %v, want ErrInvalidTicker", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeAll(t *testing.T) {
	accepted, rejected := NormalizeAll([]string{"petr4", "PETR4", "bad ticker", "vale3"})

	if len(accepted) != 2 || accepted[0] != "PETR4" || accepted[1] != "VALE3" {
		t.Errorf("accepted = %v, want [PETR4 VALE3]", accepted)
	}
	if len(rejected) != 1 || rejected[0] != "bad ticker" {
		t.Errorf("rejected = %v, want [bad ticker]", rejected)
	}
}

func TestCalendar_Session(t *testing.T) {
	cal, err := NewCalendar("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("NewCalendar failed: %v", err)
	}
	loc := cal.Location()

	tests := []struct {
		name string
		at   time.Time
		want TradingSession
	}{
		{"early morning", time.Date(2024, 3, 4, 8, 30, 0, 0, loc), SessionPreMarket},
		{"open bell", time.Date(2024, 3, 4, 10, 0, 0, 0, loc), SessionOpen},
		{"afternoon", time.Date(2024, 3, 4, 16, 59, 0, 0, loc), SessionOpen},
		{"close bell", time.Date(2024, 3, 4, 17, 0, 0, 0, loc), SessionClosed},
		{"saturday", time.Date(2024, 3, 2, 12, 0, 0, 0, loc), SessionClosed},
		{"utc input converted", time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), SessionOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.Session(tt.at); got != tt.want {
				t.Errorf("Session(%v) = %q, want %q", tt.at, got, tt.want)
			}
		})
	}
}

func TestNewCalendar_BadZone(t *testing.T) {
	if _, err := NewCalendar("Not/AZone"); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
