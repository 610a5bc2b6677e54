package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

// Format is a document encoding.
type Format string

const (
	YAML  Format = "yaml"
	JSON  Format = "json"
	JSONC Format = "jsonc"
)

var validate = validator.New()

// FormatOf picks the format from a file extension. Unknown extensions are YAML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON
	case ".jsonc":
		return JSONC
	}
	return YAML
}

func decode(data []byte, format Format, v any) error {
	switch format {
	case JSON, JSONC:
		// JSONC is JSON with comments and trailing commas
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: parsing %s document: %w", domain.ErrUpdateFailed, format, err)
		}
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: parsing yaml document: %w", domain.ErrUpdateFailed, err)
		}
	default:
		return domain.UpdateFailed("unknown document format %q", format)
	}
	return Validate(v)
}

func encode(v any, format Format) ([]byte, error) {
	switch format {
	case JSON, JSONC:
		return json.MarshalIndent(v, "", "  ")
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown document format %q", format)
}

// invalid turns validator output into a structural validation error that
// names every offending field.
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.UpdateFailed("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return domain.UpdateFailed("invalid document: %s", strings.Join(msgs, "; "))
}

// ===========================================================================
// Entry points
// ===========================================================================

// ParseDomain decodes and builds a domain document.
func (b Builder) ParseDomain(data []byte, format Format) (*domain.Domain, error) {
	var doc DomainDoc
	if err := decode(data, format, &doc); err != nil {
		return nil, err
	}
	return b.Domain(&doc)
}

// ParseHost decodes and builds a host document.
func (b Builder) ParseHost(data []byte, format Format) (*domain.Host, error) {
	var doc HostDoc
	if err := decode(data, format, &doc); err != nil {
		return nil, err
	}
	return b.Host(&doc)
}

// ReadDomainFile reads a domain document, picking the format from the extension.
func (b Builder) ReadDomainFile(path string) (*domain.Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	d, err := b.ParseDomain(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ReadHostFile reads a host document, picking the format from the extension.
func (b Builder) ReadHostFile(path string) (*domain.Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	h, err := b.ParseHost(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// MarshalDomain writes d in the given format. JSONC is written as plain JSON.
func MarshalDomain(d *domain.Domain, format Format) ([]byte, error) {
	return encode(FromDomain(d), format)
}

// MarshalHost writes h in the given format.
func MarshalHost(h *domain.Host, format Format) ([]byte, error) {
	return encode(FromHost(h), format)
}

// MarshalServerModel writes a flattened server model in the given format.
func MarshalServerModel(m *domain.ServerModel, format Format) ([]byte, error) {
	return encode(FromServerModel(m), format)
}

// Codec stores trees as JSON documents. It satisfies domain.ModelCodec.
type Codec struct {
	Builder Builder
}

func (c Codec) EncodeDomain(d *domain.Domain) ([]byte, error) { return json.Marshal(FromDomain(d)) }

func (c Codec) DecodeDomain(data []byte) (*domain.Domain, error) {
	return c.Builder.ParseDomain(data, JSON)
}

func (c Codec) EncodeHost(h *domain.Host) ([]byte, error) { return json.Marshal(FromHost(h)) }

func (c Codec) DecodeHost(data []byte) (*domain.Host, error) {
	return c.Builder.ParseHost(data, JSON)
}

// Validate checks a decoded document's field constraints.
func Validate(doc any) error {
	if err := validate.Struct(doc); err != nil {
		return invalid(err)
	}
	return nil
}
