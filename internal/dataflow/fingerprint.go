package dataflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/saifalharthi/materialize/internal/repr"
)

// DomainDataflow is the domain prefix of dataflow fingerprints. The
// version suffix leaves room to change the encoding.
const DomainDataflow = "materialize/dataflow/v1"

// Fingerprint returns a content address for d: the hex SHA-256 of the
// domain prefix, a zero byte, and the canonical JSON encoding of d.
// Structurally equal dataflows have equal fingerprints.
func Fingerprint(d Dataflow) (string, error) {
	data, err := Marshal(d)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	canonical, err := repr.Canonicalize(data)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(DomainDataflow))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
