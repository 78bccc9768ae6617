package verify_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/certstamp"
	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/verify"
)

func setup(t *testing.T, codes ...string) (*verify.Service, *sql.DB, []*model.Certificate) {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database, certstamp.MigrationFS); err != nil {
		t.Fatal(err)
	}

	tpl := &model.Template{
		ID: uuid.New().String(), Name: "T", Width: 10, Height: 10,
		BackgroundPath: "templates/t.png", BackgroundMime: "image/png", SourceType: "image", SHA256: "x",
	}
	if err := db.CreateTemplate(database, tpl); err != nil {
		t.Fatal(err)
	}

	var out []*model.Certificate
	for _, code := range codes {
		if ok, err := db.ReserveCode(database, code); err != nil || !ok {
			t.Fatalf("reserve %s: %v %v", code, ok, err)
		}
		c := &model.Certificate{
			ID: uuid.New().String(), TemplateID: tpl.ID, UniqueCode: code,
			ParticipantName: "Ada", DocumentID: "1", CertifierName: "C", RepresentativeName: "R",
			IssueDate: time.Now().UTC(), IsValid: true, HashCode: "h",
			ArtifactPath: "certificates/x.png", ArtifactType: "image/png",
		}
		if err := db.CreateCertificate(database, c); err != nil {
			t.Fatal(err)
		}
		out = append(out, c)
	}
	return &verify.Service{DB: database}, database, out
}

func TestVerifyCountsEveryCall(t *testing.T) {
	svc, _, certs := setup(t, "ABCDEFGH23")

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(context.Background(), "ABCDEFGH23", verify.Meta{IPAddress: "10.0.0.1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	view, err := svc.Verify(context.Background(), " abcdefgh23 ", verify.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if view.ValidationCount != n+1 {
		t.Errorf("validation_count = %d, want %d", view.ValidationCount, n+1)
	}
	if !view.IsValid || view.ParticipantName != "Ada" {
		t.Errorf("view = %+v", view)
	}

	history, err := svc.History(certs[0].ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != n+1 {
		t.Errorf("history = %d rows, want %d", len(history), n+1)
	}
}

func TestVerifyUnknownCode(t *testing.T) {
	svc, database, certs := setup(t, "ABCDEFGH23")

	for _, code := range []string{"ZZZZZZZZZZ", "", "   "} {
		_, err := svc.Verify(context.Background(), code, verify.Meta{})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Verify(%q) err = %v, want NOT_FOUND", code, err)
		}
	}

	got, err := db.GetCertificate(database, certs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ValidationCount != 0 {
		t.Errorf("validation_count = %d after misses, want 0", got.ValidationCount)
	}
}
