package intent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMissing(t *testing.T) {
	tests := []struct {
		name string
		in   BookingIntent
		want []string
	}{
		{"empty", BookingIntent{}, []string{FactService, FactDate, FactTime}},
		{"service only", BookingIntent{ServiceID: "svc-cut"}, []string{FactDate, FactTime}},
		{"flexible", BookingIntent{ServiceID: "svc-cut", Date: date("2026-10-20"), IsFlexible: true}, nil},
		{"exact", BookingIntent{ServiceID: "svc-cut", Date: date("2026-10-20"), Time: tod(15, 0)}, nil},
		{"name without id", BookingIntent{ServiceName: "Haircut", Date: date("2026-10-20"), Time: tod(15, 0)}, []string{FactService}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.in.Missing()); diff != "" {
				t.Fatalf("unexpected missing facts:\n%s", diff)
			}
			if tt.in.Complete() != (len(tt.want) == 0) {
				t.Fatalf("Complete() disagrees with Missing()")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	prior := BookingIntent{ServiceID: "svc-cut", ServiceName: "Haircut", Date: date("2026-10-20"), Time: tod(15, 0), Language: "en"}

	t.Run("absent facts inherited", func(t *testing.T) {
		got := Merge(prior, BookingIntent{})
		if diff := cmp.Diff(prior, got); diff != "" {
			t.Fatalf("unexpected merge:\n%s", diff)
		}
	})
	t.Run("present facts override", func(t *testing.T) {
		got := Merge(prior, BookingIntent{Date: date("2026-10-21"), Language: "es"})
		want := prior
		want.Date = date("2026-10-21")
		want.Language = "es"
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("unexpected merge:\n%s", diff)
		}
	})
	t.Run("flexible clears time", func(t *testing.T) {
		got := Merge(prior, BookingIntent{IsFlexible: true})
		if got.Time != nil || !got.IsFlexible {
			t.Fatalf("expected flexible without time, got %+v", got)
		}
	})
	t.Run("time clears flexible", func(t *testing.T) {
		flex := Merge(prior, BookingIntent{IsFlexible: true})
		got := Merge(flex, BookingIntent{Time: tod(9, 30)})
		if got.IsFlexible || got.Time == nil || *got.Time != *tod(9, 30) {
			t.Fatalf("expected exact time, got %+v", got)
		}
	})
	t.Run("does not alias update", func(t *testing.T) {
		update := BookingIntent{Date: date("2026-10-22")}
		got := Merge(prior, update)
		update.Date.Day = 30
		if got.Date.Day != 22 {
			t.Fatalf("merge result shares memory with update")
		}
	})
}

func TestWithoutDate(t *testing.T) {
	in := BookingIntent{ServiceID: "svc-cut", Date: date("2026-10-20"), Time: tod(15, 0)}
	out := in.WithoutDate()
	if out.Date != nil || in.Date == nil || out.Time == nil {
		t.Fatalf("unexpected result %+v", out)
	}
}
