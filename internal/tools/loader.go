package tools

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

// Builtin driver names accepted in a registry file.
const (
	DriverEmbeddedText = "embedded_text"
	DriverVendorTable  = "vendor_table"
	DriverFixtures     = "fixtures"
	DriverHTTP         = "http"
)

// File is the YAML registry document.
type File struct {
	Tools []Spec `yaml:"tools"`
}

// Spec declares one tool in a registry file. Driver-specific fields are
// ignored by drivers that do not use them.
type Spec struct {
	Name          string   `yaml:"name"`
	Capability    string   `yaml:"capability"`
	Driver        string   `yaml:"driver"`
	Priority      int      `yaml:"priority"`
	Health        string   `yaml:"health"`
	Regions       []string `yaml:"regions"`
	DocumentTypes []string `yaml:"document_types"`

	Endpoint string            `yaml:"endpoint"`
	Timeout  string            `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`

	DefaultRisk float64        `yaml:"default_risk"`
	Vendors     []VendorRecord `yaml:"vendors"`

	PurchaseOrders []invoice.PurchaseOrder `yaml:"purchase_orders"`
	GoodsReceipts  []invoice.GoodsReceipt  `yaml:"goods_receipts"`
}

// ParseFile decodes a registry file. Environment references in header
// values are expanded.
func ParseFile(data []byte) (File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return File{}, fmt.Errorf("tools: registry file is empty")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("tools: decode registry: %w", err)
	}
	for i := range f.Tools {
		for k, v := range f.Tools[i].Headers {
			f.Tools[i].Headers[k] = os.ExpandEnv(v)
		}
		f.Tools[i].Endpoint = os.ExpandEnv(f.Tools[i].Endpoint)
	}
	return f, nil
}

// Load reads a registry file from r and builds its descriptors.
func Load(r io.Reader) ([]Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tools: read registry: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	return f.Descriptors()
}

// LoadFile reads the registry file at path and builds its descriptors.
func LoadFile(path string) ([]Descriptor, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tools: open %s: %w", path, err)
	}
	defer fh.Close()

	ds, err := Load(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Descriptors builds a descriptor per spec in file order.
func (f File) Descriptors() ([]Descriptor, error) {
	ds := make([]Descriptor, 0, len(f.Tools))
	for _, s := range f.Tools {
		d, err := s.Descriptor()
		if err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	return ds, nil
}

// Descriptor builds the descriptor and connector declared by s.
func (s Spec) Descriptor() (Descriptor, error) {
	capability, err := ParseCapability(s.Capability)
	if err != nil {
		return Descriptor{}, fmt.Errorf("tool %s: %w", s.Name, err)
	}

	d := Descriptor{
		Name:          s.Name,
		Capability:    capability,
		Driver:        s.Driver,
		Priority:      s.Priority,
		Health:        Health(s.Health),
		Regions:       s.Regions,
		DocumentTypes: s.DocumentTypes,
	}

	switch s.Driver {
	case DriverEmbeddedText:
		d.OCR = EmbeddedText{}
	case DriverVendorTable:
		d.Enrichment = NewVendorTable(s.Name, s.DefaultRisk, s.Vendors)
	case DriverFixtures:
		d.ERP = NewFixtures(s.PurchaseOrders, s.GoodsReceipts)
	case DriverHTTP:
		if s.Endpoint == "" {
			return Descriptor{}, fmt.Errorf("%w: tool %s: endpoint is required", ErrInvalidDescriptor, s.Name)
		}
		timeout := 30 * time.Second
		if s.Timeout != "" {
			if timeout, err = time.ParseDuration(s.Timeout); err != nil {
				return Descriptor{}, fmt.Errorf("%w: tool %s: invalid timeout: %w", ErrInvalidDescriptor, s.Name, err)
			}
		}
		h := NewHTTP(s.Endpoint, timeout, s.Headers)
		d.OCR, d.Enrichment, d.ERP = h, h, h
	default:
		return Descriptor{}, fmt.Errorf("%w: tool %s: %q", ErrUnknownDriver, s.Name, s.Driver)
	}

	if err := d.validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Defaults returns the builtin tool set used when no registry file is configured.
func Defaults() []Descriptor {
	return []Descriptor{
		{Name: "embedded-text", Capability: OCR, Driver: DriverEmbeddedText, Priority: 10, Health: Healthy, OCR: EmbeddedText{}},
		{Name: "vendor-master", Capability: Enrichment, Driver: DriverVendorTable, Priority: 10, Health: Healthy, Enrichment: NewVendorTable("vendor-master", 0.5, nil)},
		{Name: "erp-fixtures", Capability: ERP, Driver: DriverFixtures, Priority: 10, Health: Healthy, ERP: NewFixtures(nil, nil)},
	}
}
