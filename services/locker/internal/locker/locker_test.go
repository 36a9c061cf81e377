package locker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"trustgate/pkg/config"
	"trustgate/pkg/digest"
	"trustgate/pkg/domain"
	"trustgate/services/locker/internal/locker"
	"trustgate/services/locker/internal/memstore"
)

func newService(t *testing.T) (*locker.Service, *memstore.Blobs) {
	t.Helper()
	blobs := memstore.NewBlobs()
	svc := locker.New(memstore.New(), blobs, digest.SHA256(), config.Default(), config.DefaultPolicy())
	return svc, blobs
}

func storeArtifact(t *testing.T, svc *locker.Service, label string) domain.EvidenceArtifact {
	t.Helper()
	h := digest.SHA256()
	a, err := svc.Store(context.Background(), locker.StoreRequest{
		TenantID:    "ten_1",
		WorkspaceID: "ws_1",
		Type:        domain.ArtifactLog,
		Label:       label,
		ContentHash: h.Sum([]byte(label)),
		StorageURI:  "mem://" + label,
		SizeBytes:   1024,
		MimeType:    "text/plain",
		CreatedBy:   "user_1",
	})
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}
	return a
}

func TestStoreCreatesPendingWithCustody(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "build.log")
	if a.Status != domain.ArtifactPending {
		t.Fatalf("status = %s, want pending", a.Status)
	}
	if len(a.CustodyChain) != 1 || a.CustodyChain[0].Action != domain.CustodyCreated {
		t.Fatalf("unexpected custody chain: %+v", a.CustodyChain)
	}
	if a.Retention != "90d" {
		t.Fatalf("default retention not applied: %s", a.Retention)
	}
}

func TestStoreValidation(t *testing.T) {
	svc, _ := newService(t)
	base := locker.StoreRequest{
		TenantID: "ten_1", WorkspaceID: "ws_1", Type: domain.ArtifactLog,
		Label: "x", ContentHash: digest.SHA256().Sum([]byte("x")),
		SizeBytes: 10, MimeType: "text/plain", CreatedBy: "u",
	}

	big := base
	big.SizeBytes = config.Default().MaxArtifactSizeBytes + 1
	assertCode(t, storeErr(svc, big), "SIZE_EXCEEDED")

	mime := base
	mime.MimeType = "application/x-msdownload"
	assertCode(t, storeErr(svc, mime), "UNSUPPORTED_MIME_TYPE")

	hash := base
	hash.ContentHash = "nothex"
	assertCode(t, storeErr(svc, hash), "INVALID_HASH")

	mismatch := base
	mismatch.Content = []byte("different content")
	assertCode(t, storeErr(svc, mismatch), "INVALID_HASH")
}

func storeErr(svc *locker.Service, req locker.StoreRequest) error {
	_, err := svc.Store(context.Background(), req)
	return err
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var derr *domain.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *domain.Error, got %v", err)
	}
	if derr.Code != code {
		t.Fatalf("code = %s, want %s", derr.Code, code)
	}
}

func TestVerifyTransitionsOnceAndIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "build.log")
	ctx := context.Background()

	res, err := svc.Verify(ctx, a.ArtifactID, a.ContentHash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !res.Valid || !res.HashMatch || res.Artifact.Status != domain.ArtifactVerified {
		t.Fatalf("first verify = %+v", res)
	}
	chainLen := len(res.Artifact.CustodyChain)

	res2, err := svc.Verify(ctx, a.ArtifactID, a.ContentHash)
	if err != nil {
		t.Fatalf("second Verify error: %v", err)
	}
	if res2.HashMatch != res.HashMatch || res2.Artifact.Status != domain.ArtifactVerified {
		t.Fatalf("verify not idempotent: %+v", res2)
	}
	if len(res2.Artifact.CustodyChain) != chainLen {
		t.Fatalf("second verify appended custody: %d -> %d", chainLen, len(res2.Artifact.CustodyChain))
	}
}

func TestVerifyHashMismatchKeepsPending(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "build.log")
	res, err := svc.Verify(context.Background(), a.ArtifactID, "sha256:0000000000000000")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if res.HashMatch || res.Valid {
		t.Fatalf("mismatched hash must not be valid: %+v", res)
	}
	if res.Artifact.Status != domain.ArtifactPending {
		t.Fatalf("status transitioned on mismatch: %s", res.Artifact.Status)
	}
}

func TestRedactedNeverValidAgain(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "build.log")
	ctx := context.Background()

	if _, err := svc.Redact(ctx, a.ArtifactID, "contains secret", "admin_1"); err != nil {
		t.Fatalf("Redact error: %v", err)
	}
	res, err := svc.Verify(ctx, a.ArtifactID, a.ContentHash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if res.Valid {
		t.Fatalf("redacted artifact reported valid")
	}
	if !res.HashMatch {
		t.Fatalf("hash comparison should still run on redacted artifacts")
	}
}

func TestSupersededNeverValidAgain(t *testing.T) {
	svc, _ := newService(t)
	old := storeArtifact(t, svc, "v1.log")
	repl := storeArtifact(t, svc, "v2.log")
	ctx := context.Background()

	got, err := svc.Supersede(ctx, old.ArtifactID, repl.ArtifactID, "admin_1")
	if err != nil {
		t.Fatalf("Supersede error: %v", err)
	}
	if got.Status != domain.ArtifactSuperseded {
		t.Fatalf("status = %s", got.Status)
	}
	res, err := svc.Verify(ctx, old.ArtifactID, old.ContentHash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if res.Valid {
		t.Fatalf("superseded artifact reported valid")
	}
}

func TestSupersedeRequiresExistingReplacement(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "v1.log")
	_, err := svc.Supersede(context.Background(), a.ArtifactID, "art_missing", "admin_1")
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCustodyChainAppendOnly(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "build.log")
	ctx := context.Background()
	prev := len(a.CustodyChain)

	ops := []func() (domain.EvidenceArtifact, error){
		func() (domain.EvidenceArtifact, error) {
			return svc.AddCustodyEntry(ctx, a.ArtifactID, locker.CustodyRequest{Action: domain.CustodyAccessed, Actor: "partner_1"})
		},
		func() (domain.EvidenceArtifact, error) {
			res, err := svc.Verify(ctx, a.ArtifactID, a.ContentHash)
			if err != nil {
				return domain.EvidenceArtifact{}, err
			}
			return *res.Artifact, nil
		},
		func() (domain.EvidenceArtifact, error) {
			return svc.Redact(ctx, a.ArtifactID, "cleanup", "admin_1")
		},
	}
	for i, op := range ops {
		got, err := op()
		if err != nil {
			t.Fatalf("op %d error: %v", i, err)
		}
		if len(got.CustodyChain) < prev {
			t.Fatalf("op %d shrank custody chain: %d -> %d", i, prev, len(got.CustodyChain))
		}
		prev = len(got.CustodyChain)
	}
}

func TestQueryRoundTripAndFilters(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "build.log")
	storeArtifact(t, svc, "other.log")
	ctx := context.Background()

	res, err := svc.Query(ctx, locker.Query{TenantID: "ten_1"})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("total_count = %d, want 2", res.TotalCount)
	}
	found := false
	for _, got := range res.Artifacts {
		if got.ArtifactID == a.ArtifactID && got.ContentHash == a.ContentHash {
			found = true
		}
	}
	if !found {
		t.Fatalf("stored artifact not returned with identical content_hash")
	}

	res, err = svc.Query(ctx, locker.Query{TenantID: "ten_other"})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if res.TotalCount != 0 || len(res.Artifacts) != 0 {
		t.Fatalf("tenant isolation violated: %+v", res)
	}

	res, err = svc.Query(ctx, locker.Query{TenantID: "ten_1", Statuses: []domain.ArtifactStatus{domain.ArtifactVerified}})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if res.TotalCount != 0 {
		t.Fatalf("status filter matched pending artifacts")
	}
}

func TestQueryPagination(t *testing.T) {
	svc, _ := newService(t)
	for i := 0; i < 5; i++ {
		storeArtifact(t, svc, "log-"+string(rune('a'+i)))
	}
	ctx := context.Background()

	page1, err := svc.Query(ctx, locker.Query{TenantID: "ten_1", Limit: 2})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(page1.Artifacts) != 2 || page1.TotalCount != 5 || page1.NextCursor == "" {
		t.Fatalf("page1 = %d items, total %d, cursor %q", len(page1.Artifacts), page1.TotalCount, page1.NextCursor)
	}

	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := svc.Query(ctx, locker.Query{TenantID: "ten_1", Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("Query error: %v", err)
		}
		for _, a := range page.Artifacts {
			if seen[a.ArtifactID] {
				t.Fatalf("artifact %s returned twice across pages", a.ArtifactID)
			}
			seen[a.ArtifactID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 5 {
		t.Fatalf("pagination returned %d distinct artifacts, want 5", len(seen))
	}
}

func TestQueryRequiresTenant(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Query(context.Background(), locker.Query{})
	assertCode(t, err, "TENANT_REQUIRED")
}

func TestStatsCounts(t *testing.T) {
	svc, _ := newService(t)
	a := storeArtifact(t, svc, "one.log")
	storeArtifact(t, svc, "two.log")
	ctx := context.Background()
	if _, err := svc.Verify(ctx, a.ArtifactID, ""); err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if st.Total != 2 || st.ByStatus["verified"] != 1 || st.ByStatus["pending"] != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.ByType["log"] != 2 {
		t.Fatalf("by_type = %+v", st.ByType)
	}
}

func TestClockInjection(t *testing.T) {
	svc, _ := newService(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })
	a := storeArtifact(t, svc, "clocked.log")
	if !a.CreatedAt.Equal(fixed) {
		t.Fatalf("created_at = %v, want %v", a.CreatedAt, fixed)
	}
}
