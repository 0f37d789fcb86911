package ingest

import (
	"encoding/asn1"

	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// cscaMasterListContent is the ASN.1 shape of the content signed inside
// a Master List or Deviation List CMS SignedData, per ICAO Doc 9303 Part
// 12: a version integer followed by a SET OF Certificate.
type cscaMasterListContent struct {
	Version  int
	CertList []asn1.RawValue `asn1:"set"`
}

// extractMasterListCerts pulls the embedded certificate DERs out of a
// Master List / DVL's signed content. Each element of CertList is a raw
// DER certificate (its FullBytes is the whole TBS+signature SEQUENCE).
func extractMasterListCerts(signedContent []byte) ([][]byte, error) {
	var content cscaMasterListContent
	if _, err := asn1.Unmarshal(signedContent, &content); err != nil {
		return nil, pkderrors.New(pkderrors.Parse, "master list content is not a well-formed SEQUENCE{version, SET OF Certificate}: %s", err)
	}
	certs := make([][]byte, 0, len(content.CertList))
	for _, raw := range content.CertList {
		certs = append(certs, raw.FullBytes)
	}
	return certs, nil
}
