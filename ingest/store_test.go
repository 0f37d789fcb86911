package ingest

import (
	"context"
	"time"

	"github.com/icao-pkd/trustdir/core"
	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// fakeStore is a minimal in-memory core.TrustStore for pipeline tests.
type fakeStore struct {
	certsByFP map[string]core.Certificate
	crlsByFP  map[string]core.CRL
	files     map[string]core.UploadedFile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		certsByFP: map[string]core.Certificate{},
		crlsByFP:  map[string]core.CRL{},
		files:     map[string]core.UploadedFile{},
	}
}

func (s *fakeStore) FindByFingerprint(ctx context.Context, fingerprint string) (core.Certificate, error) {
	c, ok := s.certsByFP[fingerprint]
	if !ok {
		return core.Certificate{}, pkderrors.NotFoundError("not found")
	}
	return c, nil
}

func (s *fakeStore) FindBySubjectDN(ctx context.Context, subjectDN string) ([]core.Certificate, error) {
	var out []core.Certificate
	for _, c := range s.certsByFP {
		if c.SubjectDN == subjectDN {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) FindIssuerOf(ctx context.Context, cert core.Certificate) ([]core.Certificate, error) {
	return s.FindBySubjectDN(ctx, cert.IssuerDN)
}

func (s *fakeStore) FindCRLFor(ctx context.Context, issuerDN, country string) (core.CRL, error) {
	for _, c := range s.crlsByFP {
		if c.IssuerDN == issuerDN && c.Country == country {
			return c, nil
		}
	}
	return core.CRL{}, pkderrors.NotFoundError("not found")
}

func (s *fakeStore) CountByType(ctx context.Context) (map[core.CertType]int, error) {
	out := map[core.CertType]int{}
	for _, c := range s.certsByFP {
		out[c.Type]++
	}
	return out, nil
}

func (s *fakeStore) CountByCountry(ctx context.Context) (map[string]map[core.CertType]int, error) {
	out := map[string]map[core.CertType]int{}
	for _, c := range s.certsByFP {
		if out[c.Country] == nil {
			out[c.Country] = map[core.CertType]int{}
		}
		out[c.Country][c.Type]++
	}
	return out, nil
}

func (s *fakeStore) Paginate(ctx context.Context, filter core.CertificateFilter) ([]core.Certificate, error) {
	var out []core.Certificate
	for _, c := range s.certsByFP {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) ExpiringWithin(ctx context.Context, window time.Duration, now time.Time) ([]core.Certificate, error) {
	var out []core.Certificate
	for _, c := range s.certsByFP {
		if c.NotAfter.After(now) && c.NotAfter.Before(now.Add(window)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetUploadedFile(ctx context.Context, id string) (core.UploadedFile, error) {
	f, ok := s.files[id]
	if !ok {
		return core.UploadedFile{}, pkderrors.NotFoundError("not found")
	}
	return f, nil
}

func (s *fakeStore) FindIcaoVersion(ctx context.Context, collection core.Collection, version int) (core.IcaoVersion, bool, error) {
	return core.IcaoVersion{}, false, nil
}

func (s *fakeStore) CountCRLs(ctx context.Context) (int, error) {
	return len(s.crlsByFP), nil
}

func (s *fakeStore) InsertCertificateIfAbsent(ctx context.Context, cert core.Certificate) (core.InsertResult, error) {
	if existing, ok := s.certsByFP[cert.Fingerprint]; ok {
		return core.InsertResult{Inserted: false, ExistingID: existing.Fingerprint}, nil
	}
	s.certsByFP[cert.Fingerprint] = cert
	return core.InsertResult{Inserted: true}, nil
}

func (s *fakeStore) InsertCRLIfAbsent(ctx context.Context, crl core.CRL) (core.InsertResult, error) {
	if existing, ok := s.crlsByFP[crl.Fingerprint]; ok {
		return core.InsertResult{Inserted: false, ExistingID: existing.Fingerprint}, nil
	}
	s.crlsByFP[crl.Fingerprint] = crl
	return core.InsertResult{Inserted: true}, nil
}

func (s *fakeStore) MarkStoredInDirectory(ctx context.Context, fingerprint string, stored bool) error {
	c, ok := s.certsByFP[fingerprint]
	if !ok {
		return pkderrors.NotFoundError("not found")
	}
	c.StoredInDirectory = stored
	s.certsByFP[fingerprint] = c
	return nil
}

func (s *fakeStore) CreateUploadedFile(ctx context.Context, f core.UploadedFile) (core.UploadedFile, error) {
	s.files[f.ID] = f
	return f, nil
}

func (s *fakeStore) UpdateUploadedFile(ctx context.Context, f core.UploadedFile) error {
	s.files[f.ID] = f
	return nil
}

func (s *fakeStore) SaveSyncStatus(ctx context.Context, st core.SyncStatus) error { return nil }

func (s *fakeStore) SavePaVerification(ctx context.Context, v core.PaVerification) error { return nil }

func (s *fakeStore) InsertIcaoVersion(ctx context.Context, v core.IcaoVersion) (core.InsertResult, error) {
	return core.InsertResult{Inserted: true}, nil
}

func (s *fakeStore) MarkIcaoVersionNotified(ctx context.Context, id string) error { return nil }
