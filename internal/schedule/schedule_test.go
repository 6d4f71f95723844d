package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func TestParseDateRejectsImpossibleDays(t *testing.T) {
	if _, err := ParseDate("2026-02-30"); err == nil {
		t.Fatalf("expected error for 2026-02-30")
	}
	d := mustDate(t, "2026-10-18")
	if d.Weekday() != time.Sunday {
		t.Fatalf("expected sunday, got %s", d.Weekday())
	}
	if got := d.AddDays(14).String(); got != "2026-11-01" {
		t.Fatalf("expected 2026-11-01, got %s", got)
	}
	if d.DaysUntil(d.AddDays(-3)) != -3 {
		t.Fatalf("expected -3 days")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"15:00", TimeOfDay{Hour: 15}, false},
		{"09:30", TimeOfDay{Hour: 9, Minute: 30}, false},
		{"24:00", TimeOfDay{}, true},
		{"3pm", TimeOfDay{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: unexpected err %v", tt.in, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestHoursOnUsesSalonLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	st := Staff{ID: "s1", Hours: []WorkingHours{
		{Weekday: time.Monday, Start: TimeOfDay{Hour: 13}, End: TimeOfDay{Hour: 17}},
		{Weekday: time.Monday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 12}},
		{Weekday: time.Tuesday, Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 17}},
	}}
	got := st.HoursOn(mustDate(t, "2026-10-19"), loc)
	if len(got) != 2 {
		t.Fatalf("expected split shift, got %v", got)
	}
	if got[0].Start.Hour() != 9 || got[1].Start.Hour() != 13 {
		t.Fatalf("expected shifts sorted by start, got %v", got)
	}
	if got[0].Start.Location() != loc {
		t.Fatalf("expected salon location")
	}
}

func TestIntervalOverlapsIsHalfOpen(t *testing.T) {
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(time.Hour)}
	b := Interval{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatalf("back-to-back intervals must not overlap")
	}
	c := Interval{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}
	if !a.Overlaps(c) || !c.Overlaps(b) {
		t.Fatalf("expected overlap")
	}
}

func TestSubtract(t *testing.T) {
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }
	free := []Interval{{Start: at(0, 0), End: at(8, 0)}}
	busy := []Interval{
		{Start: at(3, 0), End: at(4, 0)},
		{Start: at(0, 0), End: at(1, 0)},
		{Start: at(3, 30), End: at(5, 0)},
		{Start: at(7, 30), End: at(9, 0)},
	}
	got := Subtract(free, busy)
	want := []Interval{
		{Start: at(1, 0), End: at(3, 0)},
		{Start: at(5, 0), End: at(7, 30)},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %v", len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func testCatalog() Catalog {
	return Catalog{
		Salon: Salon{ID: "salon-1", Name: "Shear Joy", Timezone: "UTC"},
		Services: []Service{
			{ID: "svc-cut", Name: "Haircut", Aliases: []string{"trim"}, DurationMinutes: 30},
			{ID: "svc-color", Name: "Hair Color", DurationMinutes: 90},
			{ID: "svc-beard", Name: "Beard Trim", DurationMinutes: 15},
		},
		Staff: []Staff{
			{ID: "staff-b", ServiceIDs: []string{"svc-cut"}},
			{ID: "staff-a", ServiceIDs: []string{"svc-cut", "svc-color"}},
		},
	}
}

func TestResolveService(t *testing.T) {
	cat := testCatalog()
	if err := cat.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	tests := []struct {
		in     string
		wantID string
		ok     bool
	}{
		{"haircut", "svc-cut", true},
		{"  HAIRCUT ", "svc-cut", true},
		{"trim", "svc-cut", true},
		{"color", "svc-color", true},
		{"hair", "", false},
		{"massage", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		svc, ok := cat.ResolveService(tt.in)
		if ok != tt.ok || svc.ID != tt.wantID {
			t.Fatalf("%q: expected (%s,%v), got (%s,%v)", tt.in, tt.wantID, tt.ok, svc.ID, ok)
		}
	}
	staff := cat.StaffFor("svc-cut")
	if len(staff) != 2 || staff[0].ID != "staff-a" {
		t.Fatalf("expected staff ordered by id, got %+v", staff)
	}
}

func TestMemoryStore(t *testing.T) {
	store, err := NewMemoryStore(testCatalog())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	cat, err := store.Catalog(context.Background(), "salon-1")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if cat.Location() != time.UTC {
		t.Fatalf("expected UTC location")
	}
	if _, err := store.Catalog(context.Background(), "missing"); !errors.Is(err, ErrSalonNotFound) {
		t.Fatalf("expected ErrSalonNotFound, got %v", err)
	}
}

func TestLoadMemoryStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	seed := `[{"salon":{"id":"s1","name":"Demo","timezone":"UTC"},
		"services":[{"id":"cut","name":"Haircut","duration_minutes":30}],
		"staff":[{"id":"ana","name":"Ana","service_ids":["cut"],"hours":[{"weekday":1,"start":"09:00","end":"17:00"}]}]}]`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	store, err := LoadMemoryStore(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cat, err := store.Catalog(context.Background(), "s1")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(cat.Staff) != 1 || cat.Staff[0].Hours[0].End != (TimeOfDay{Hour: 17}) {
		t.Fatalf("unexpected staff %+v", cat.Staff)
	}
}

func TestLoadBundledSeedCatalog(t *testing.T) {
	store, err := LoadMemoryStore(filepath.Join("..", "..", "testdata", "salons.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cats := store.Catalogs()
	if len(cats) != 2 || cats[0].Salon.ID != "nail-bar" || cats[1].Salon.ID != "studio-one" {
		t.Fatalf("unexpected catalogs %+v", cats)
	}
	if cats[1].Location().String() != "America/New_York" {
		t.Fatalf("location = %s", cats[1].Location())
	}
}

func TestPostgresStoreCatalog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT id, name, timezone FROM salons").WithArgs("salon-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "timezone"}).AddRow("salon-1", "Shear Joy", "UTC"))
	mock.ExpectQuery("FROM services").WithArgs("salon-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "aliases", "duration_minutes"}).
			AddRow("svc-cut", "Haircut", []string{"trim"}, 30))
	mock.ExpectQuery("FROM staff WHERE salon_id").WithArgs("salon-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow("staff-a", "Ana").AddRow("staff-b", "Bo"))
	mock.ExpectQuery("FROM staff_services").WithArgs("salon-1").
		WillReturnRows(pgxmock.NewRows([]string{"staff_id", "service_id"}).AddRow("staff-a", "svc-cut").AddRow("staff-x", "svc-cut"))
	mock.ExpectQuery("FROM working_hours").WithArgs("salon-1").
		WillReturnRows(pgxmock.NewRows([]string{"staff_id", "weekday", "start_minute", "end_minute"}).
			AddRow("staff-a", 1, 540, 1020))

	cat, err := store.Catalog(context.Background(), "salon-1")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(cat.Services) != 1 || cat.Services[0].Duration() != 30*time.Minute {
		t.Fatalf("unexpected services %+v", cat.Services)
	}
	if len(cat.Staff) != 2 || !cat.Staff[0].Offers("svc-cut") || cat.Staff[1].Offers("svc-cut") {
		t.Fatalf("unexpected staff %+v", cat.Staff)
	}
	hours := cat.Staff[0].Hours
	if len(hours) != 1 || hours[0].Start != (TimeOfDay{Hour: 9}) || hours[0].End != (TimeOfDay{Hour: 17}) {
		t.Fatalf("unexpected hours %+v", hours)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreUnknownSalon(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)
	mock.ExpectQuery("SELECT id, name, timezone FROM salons").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	if _, err := store.Catalog(context.Background(), "nope"); !errors.Is(err, ErrSalonNotFound) {
		t.Fatalf("expected ErrSalonNotFound, got %v", err)
	}
}
