package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeTx embeds pgx.Tx so only the methods Save uses need implementing.
type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	t.db.insertArgs = args
	if t.db.insertErr != nil {
		return fakeRow{scan: func(...any) error { return t.db.insertErr }}
	}
	return fakeRow{scan: func(dest ...any) error {
		t.db.nextID++
		*dest[0].(*int64) = t.db.nextID
		*dest[1].(*time.Time) = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		t.db.pending = append(t.db.pending, args[0].(string))
		return nil
	}}
}

func (t *fakeTx) Commit(context.Context) error {
	if t.db.commitErr != nil {
		return t.db.commitErr
	}
	t.db.committed = append(t.db.committed, t.db.pending...)
	t.db.pending = nil
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.pending = nil
	t.db.rollbacks++
	return nil
}

type fakeDB struct {
	beginErr   error
	insertErr  error
	commitErr  error
	nextID     int64
	insertArgs []any
	pending    []string
	committed  []string
	commits    int
	rollbacks  int
	getRow     func(dest ...any) error
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return &fakeTx{db: d}, nil
}

func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{scan: d.getRow}
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

func TestSave_CommitsAndFillsIdentity(t *testing.T) {
	db := &fakeDB{}
	repo := &pgPlacesRepository{db: db}

	p := &Place{Name: "  Bonsai ", Address: strPtr("Ufa"), Category: strPtr(""), Image: []byte{1, 2}}
	if err := repo.Save(context.Background(), p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if p.ID != 1 {
		t.Errorf("ID = %d, want 1", p.ID)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if !p.HasImage {
		t.Error("HasImage = false, want true")
	}
	if p.Name != "Bonsai" {
		t.Errorf("Name = %q, want trimmed", p.Name)
	}
	if p.Category != nil {
		t.Errorf("Category = %q, want nil for blank input", *p.Category)
	}
	if db.commits != 1 {
		t.Errorf("commits = %d, want 1", db.commits)
	}
	if len(db.committed) != 1 || db.committed[0] != "Bonsai" {
		t.Errorf("committed = %v", db.committed)
	}
}

func TestSave_InsertFailureRollsBack(t *testing.T) {
	db := &fakeDB{insertErr: errors.New("disk full")}
	repo := &pgPlacesRepository{db: db}

	p := &Place{Name: "Kitchen"}
	err := repo.Save(context.Background(), p)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %v, want wrapped insert error", err)
	}
	if db.commits != 0 || len(db.committed) != 0 {
		t.Errorf("nothing should be committed, got %v", db.committed)
	}
	if db.rollbacks == 0 {
		t.Error("expected rollback")
	}
	if p.ID != 0 {
		t.Errorf("ID = %d, want 0 on failure", p.ID)
	}
}

func TestSave_CommitFailureLeavesPlaceUnsaved(t *testing.T) {
	db := &fakeDB{commitErr: errors.New("serialization failure")}
	repo := &pgPlacesRepository{db: db}

	p := &Place{Name: "Kitchen"}
	if err := repo.Save(context.Background(), p); err == nil {
		t.Fatal("expected error")
	}
	if len(db.committed) != 0 {
		t.Errorf("committed = %v, want none", db.committed)
	}
	if p.ID != 0 {
		t.Errorf("ID = %d, want 0", p.ID)
	}
}

func TestSave_BeginFailure(t *testing.T) {
	db := &fakeDB{beginErr: errors.New("pool closed")}
	repo := &pgPlacesRepository{db: db}

	if err := repo.Save(context.Background(), &Place{Name: "Kitchen"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSave_Validation(t *testing.T) {
	tests := []struct {
		name  string
		place Place
	}{
		{name: "empty name", place: Place{Name: ""}},
		{name: "blank name", place: Place{Name: "   "}},
		{name: "long name", place: Place{Name: strings.Repeat("a", 201)}},
		{name: "long address", place: Place{Name: "ok", Address: strPtr(strings.Repeat("a", 501))}},
		{name: "long category", place: Place{Name: "ok", Category: strPtr(strings.Repeat("a", 501))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{}
			repo := &pgPlacesRepository{db: db}

			p := tt.place
			err := repo.Save(context.Background(), &p)
			if !errors.Is(err, ErrInvalidPlace) {
				t.Fatalf("error = %v, want ErrInvalidPlace", err)
			}
			if db.insertArgs != nil {
				t.Error("invalid place must not reach the database")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGet_NotFound(t *testing.T) {
	db := &fakeDB{getRow: func(...any) error { return pgx.ErrNoRows }}
	repo := &pgPlacesRepository{db: db}

	p, err := repo.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p != nil {
		t.Errorf("got %+v, want nil", p)
	}
}

func TestGet_Found(t *testing.T) {
	db := &fakeDB{getRow: func(dest ...any) error {
		*dest[0].(*int64) = 7
		*dest[1].(*string) = "Bochka"
		*dest[4].(*[]byte) = []byte{9}
		return nil
	}}
	repo := &pgPlacesRepository{db: db}

	p, err := repo.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p == nil || p.ID != 7 || p.Name != "Bochka" || !p.HasImage {
		t.Errorf("got %+v", p)
	}
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

type memRepo struct {
	saved []Place
	fail  int // fail on this 1-based call; 0 never fails
}

func (m *memRepo) Save(_ context.Context, p *Place) error {
	if m.fail > 0 && len(m.saved)+1 == m.fail {
		return errors.New("write failed")
	}
	p.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, *p)
	return nil
}

func (m *memRepo) List(context.Context) ([]Place, error) { return m.saved, nil }
func (m *memRepo) Get(context.Context, int64) (*Place, error) { return nil, nil }

func testCatalogue() Catalogue {
	return Catalogue{
		Location: "Ufa",
		Category: "Restaurant",
		Names:    []string{"Bonsai", "Kitchen", "Shok"},
	}
}

func TestDefaultCatalogue(t *testing.T) {
	c, err := DefaultCatalogue()
	if err != nil {
		t.Fatalf("DefaultCatalogue: %v", err)
	}
	if c.Location != "Ufa" || c.Category != "Restaurant" {
		t.Errorf("got location %q category %q", c.Location, c.Category)
	}
	if len(c.Names) == 0 {
		t.Error("catalogue is empty")
	}
}

func TestSeedDefaults_SkipsMissingImages(t *testing.T) {
	images := fstest.MapFS{
		"Bonsai.png":  {Data: []byte("png")},
		"Kitchen.jpg": {Data: []byte("jpg")},
	}
	repo := &memRepo{}
	s := NewSeeder(repo, images, testCatalogue(), zerolog.Nop())

	n, err := s.SeedDefaults(context.Background())
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if n != 2 {
		t.Fatalf("saved = %d, want 2", n)
	}
	if repo.saved[0].Name != "Bonsai" || string(repo.saved[0].Image) != "png" {
		t.Errorf("first = %+v", repo.saved[0])
	}
	if repo.saved[1].Name != "Kitchen" || string(repo.saved[1].Image) != "jpg" {
		t.Errorf("second = %+v", repo.saved[1])
	}
	for _, p := range repo.saved {
		if p.Address == nil || *p.Address != "Ufa" {
			t.Errorf("%s: address = %v, want Ufa", p.Name, p.Address)
		}
		if p.Category == nil || *p.Category != "Restaurant" {
			t.Errorf("%s: category = %v, want Restaurant", p.Name, p.Category)
		}
	}
}

func TestSeedDefaults_TwiceAppendsTwoCopies(t *testing.T) {
	images := fstest.MapFS{
		"Bonsai.png":  {Data: []byte("a")},
		"Kitchen.png": {Data: []byte("b")},
		"Shok.jpeg":   {Data: []byte("c")},
	}
	repo := &memRepo{}
	s := NewSeeder(repo, images, testCatalogue(), zerolog.Nop())

	for i := 0; i < 2; i++ {
		if _, err := s.SeedDefaults(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if len(repo.saved) != 6 {
		t.Fatalf("saved %d places, want 6", len(repo.saved))
	}
	counts := map[string]int{}
	for _, p := range repo.saved {
		counts[p.Name]++
	}
	for _, name := range testCatalogue().Names {
		if counts[name] != 2 {
			t.Errorf("%s stored %d times, want 2", name, counts[name])
		}
	}
}

func TestSeedDefaults_NilImagesSavesNothing(t *testing.T) {
	repo := &memRepo{}
	n, err := NewSeeder(repo, nil, testCatalogue(), zerolog.Nop()).SeedDefaults(context.Background())
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if n != 0 || len(repo.saved) != 0 {
		t.Errorf("saved %d, want 0", n)
	}
}

func TestSeedDefaults_StopsOnSaveFailure(t *testing.T) {
	images := fstest.MapFS{
		"Bonsai.png":  {Data: []byte("a")},
		"Kitchen.png": {Data: []byte("b")},
		"Shok.png":    {Data: []byte("c")},
	}
	repo := &memRepo{fail: 2}
	n, err := NewSeeder(repo, images, testCatalogue(), zerolog.Nop()).SeedDefaults(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 1 || len(repo.saved) != 1 {
		t.Errorf("saved %d, want 1", n)
	}
}
