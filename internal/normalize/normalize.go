// Package normalize turns a raw address CSV into normalized.csv: one stable
// input_id, a canonical single-line address and a non-physical flag per row.
package normalize

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/siteverify/internal/evidence"
)

// Schema is the detected layout of the input CSV.
type Schema string

const (
	// SchemaSingle reads one full_address column.
	SchemaSingle Schema = "single"
	// SchemaMulti joins address_line1 .. country.
	SchemaMulti Schema = "multi"
)

// InputIDVersion prefixes the hashed address so the id scheme can change
// without colliding with old ids.
const InputIDVersion = "v1"

var multiColumns = []string{"address_line1", "address_line2", "city", "region", "postal_code", "country"}

var (
	nonPhysicalRE = regexp.MustCompile(`(?i)\b(` +
		`P\.?\s*O\.?\s*BOX` +
		`|POST\s+OFFICE\s+BOX` +
		`|LOCKBOX` +
		`|PMB` +
		`|PRIVATE\s+MAILBOX` +
		`|SUITE\s*#?\s*[\dA-Z]+\s+AT\s+UPS\s+STORE` +
		`)\b`)

	usZIPRE = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

type inputRow struct {
	FullAddress  string `csv:"full_address"`
	AddressLine1 string `csv:"address_line1"`
	AddressLine2 string `csv:"address_line2"`
	City         string `csv:"city"`
	Region       string `csv:"region"`
	PostalCode   string `csv:"postal_code"`
	Country      string `csv:"country"`
}

// Row is one line of normalized.csv.
type Row struct {
	InputID     string `json:"input_id"`
	AddressRaw  string `json:"input_address_raw"`
	NonPhysical bool   `json:"non_physical_flag"`
}

// Normalizer converts raw address rows.
type Normalizer struct {
	// DefaultCountry fills a missing country when the postal code is a US ZIP.
	DefaultCountry string
}

// New returns a Normalizer with the given US default country.
func New(defaultCountry string) *Normalizer {
	return &Normalizer{DefaultCountry: defaultCountry}
}

// DetectSchema picks the input layout from the header row.
func DetectSchema(header []string) (Schema, error) {
	if slices.Contains(header, "full_address") {
		return SchemaSingle, nil
	}
	for _, col := range multiColumns {
		if slices.Contains(header, col) {
			return SchemaMulti, nil
		}
	}
	return "", eris.Errorf("normalize: header needs full_address or one of: %s", strings.Join(multiColumns, ", "))
}

// CollapseSpace NFC-normalizes s, trims it and squeezes internal whitespace
// runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// IsUSZIP reports whether s is a 5 or 9 digit US ZIP code.
func IsUSZIP(s string) bool {
	return usZIPRE.MatchString(strings.TrimSpace(s))
}

// IsNonPhysical reports whether addr names a mailbox rather than a site.
func IsNonPhysical(addr string) bool {
	return nonPhysicalRE.MatchString(addr)
}

// InputID returns the stable id for a canonical address.
func InputID(addr string) string {
	sum := sha256.Sum256([]byte(InputIDVersion + "|" + addr))
	return hex.EncodeToString(sum[:])
}

// address builds the canonical single-line address for a row.
func (n *Normalizer) address(row inputRow, schema Schema) string {
	if schema == SchemaSingle {
		return CollapseSpace(row.FullAddress)
	}

	country := CollapseSpace(row.Country)
	if country == "" && IsUSZIP(row.PostalCode) {
		country = CollapseSpace(n.DefaultCountry)
	}

	var parts []string
	for _, p := range []string{row.AddressLine1, row.AddressLine2, row.City, row.Region, row.PostalCode, country} {
		if c := CollapseSpace(p); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ", ")
}

// Normalize reads the raw address CSV from r and returns normalized rows in
// input order.
func (n *Normalizer) Normalize(r io.Reader) ([]Row, Schema, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(evidence.SkipBOM(r)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, "", eris.New("normalize: missing header row")
		}
		return nil, "", eris.Wrap(err, "normalize: read header")
	}

	schema, err := DetectSchema(dec.Header())
	if err != nil {
		return nil, "", err
	}

	var out []Row
	for {
		var in inputRow
		err := dec.Decode(&in)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", eris.Wrapf(err, "normalize: decode line %d", len(out)+2)
		}

		addr := n.address(in, schema)
		out = append(out, Row{
			InputID:     InputID(addr),
			AddressRaw:  addr,
			NonPhysical: IsNonPhysical(addr),
		})
	}

	zap.L().Debug("normalize: rows converted",
		zap.String("schema", string(schema)),
		zap.Int("rows", len(out)),
	)
	return out, schema, nil
}

type outputRow struct {
	InputID     string `csv:"input_id"`
	AddressRaw  string `csv:"input_address_raw"`
	NonPhysical string `csv:"non_physical_flag"`
}

// Write encodes rows as normalized.csv, header first.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(outputRow{}); err != nil {
		return eris.Wrap(err, "normalize: write header")
	}
	for i, r := range rows {
		if err := enc.Encode(outputRow{
			InputID:     r.InputID,
			AddressRaw:  r.AddressRaw,
			NonPhysical: evidence.FormatBool(r.NonPhysical),
		}); err != nil {
			return eris.Wrapf(err, "normalize: write row %d", i)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "normalize: flush")
}
