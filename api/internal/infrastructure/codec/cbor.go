// Package codec encodes stored model snapshots as deterministic CBOR.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/irgordon/karidc/api/internal/adapters/document"
	"github.com/irgordon/karidc/api/internal/core/domain"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the same tree
// always produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

var _ domain.ModelCodec = CBOR{}

// CBOR stores trees in their document shape. Decoding goes through the same
// builder as document files, so a stored snapshot is checked like any input.
type CBOR struct {
	Builder document.Builder
}

func (c CBOR) EncodeDomain(d *domain.Domain) ([]byte, error) {
	return encMode.Marshal(document.FromDomain(d))
}

func (c CBOR) DecodeDomain(data []byte) (*domain.Domain, error) {
	var doc document.DomainDoc
	if err := decMode.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding domain snapshot: %w", err)
	}
	if err := document.Validate(&doc); err != nil {
		return nil, err
	}
	return c.Builder.Domain(&doc)
}

func (c CBOR) EncodeHost(h *domain.Host) ([]byte, error) {
	return encMode.Marshal(document.FromHost(h))
}

func (c CBOR) DecodeHost(data []byte) (*domain.Host, error) {
	var doc document.HostDoc
	if err := decMode.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding host snapshot: %w", err)
	}
	if err := document.Validate(&doc); err != nil {
		return nil, err
	}
	return c.Builder.Host(&doc)
}
