package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/domain/domaintest"
	"github.com/irgordon/karidc/api/internal/infrastructure/codec"
)

func TestCBOR_RoundTripPreservesFingerprint(t *testing.T) {
	c := codec.CBOR{}

	d := domaintest.Domain()
	data, err := c.EncodeDomain(d)
	require.NoError(t, err)
	back, err := c.DecodeDomain(data)
	require.NoError(t, err)
	assert.Equal(t, d.Fingerprint(), back.Fingerprint())

	h := domaintest.Host()
	data, err = c.EncodeHost(h)
	require.NoError(t, err)
	hostBack, err := c.DecodeHost(data)
	require.NoError(t, err)
	assert.Equal(t, h.Fingerprint(), hostBack.Fingerprint())
}

func TestCBOR_EncodingIsDeterministic(t *testing.T) {
	c := codec.CBOR{}
	a, err := c.EncodeDomain(domaintest.Domain())
	require.NoError(t, err)
	b, err := c.EncodeDomain(domaintest.Domain().DeepCopy())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCBOR_RejectsGarbage(t *testing.T) {
	_, err := codec.CBOR{}.DecodeDomain([]byte{0xff, 0x00})
	assert.Error(t, err)

	_, err = codec.CBOR{}.DecodeHost([]byte{0xa0})
	assert.ErrorIs(t, err, domain.ErrUpdateFailed)
}
