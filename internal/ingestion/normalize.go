package ingestion

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
)

const (
	baseConfidence      = 0.9
	missingPricePenalty = 0.4
	missingImagePenalty = 0.3
	missingContactDrop  = 0.2
)

// RawExtractionRecord is what a scraper hands over before normalization. The set of
// shapes is closed: StructuredRecord, TextDerivedRecord, InstitutionalProxyRecord.
type RawExtractionRecord interface {
	Kind() string
	sealed()
}

const (
	KindStructured         = "structured"
	KindTextDerived        = "text_derived"
	KindInstitutionalProxy = "institutional_proxy"
)

// StructuredRecord comes from portals with a field-per-attribute listing page.
type StructuredRecord struct {
	ID           string    `json:"id"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Price        int64     `json:"price"`
	Mileage      *int      `json:"mileage,omitempty"`
	FuelType     string    `json:"fuel_type"`
	Transmission string    `json:"transmission"`
	City         string    `json:"city"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Features     []string  `json:"features,omitempty"`
	ImageURLs    []string  `json:"image_urls,omitempty"`
	SellerType   string    `json:"seller_type"`
	Contact      string    `json:"contact,omitempty"`
	Verified     bool      `json:"verified"`
	ListedAt     time.Time `json:"listed_at"`
}

// TextDerivedRecord comes from classifieds and social posts where most attributes live in free text.
type TextDerivedRecord struct {
	ID        string    `json:"id"`
	Brand     string    `json:"brand"`
	Model     string    `json:"model"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	City      string    `json:"city"`
	ImageURLs []string  `json:"image_urls,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	ListedAt  time.Time `json:"listed_at"`
}

// InstitutionalProxyRecord is a bank auction or OEM certified-program lot.
type InstitutionalProxyRecord struct {
	LotNumber    string    `json:"lot_number"`
	Institution  string    `json:"institution"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	ReservePrice int64     `json:"reserve_price"`
	Mileage      *int      `json:"mileage,omitempty"`
	FuelType     string    `json:"fuel_type"`
	Transmission string    `json:"transmission"`
	City         string    `json:"city"`
	Description  string    `json:"description"`
	ImageURLs    []string  `json:"image_urls,omitempty"`
	AuctionDate  time.Time `json:"auction_date"`
}

func (StructuredRecord) Kind() string         { return KindStructured }
func (TextDerivedRecord) Kind() string        { return KindTextDerived }
func (InstitutionalProxyRecord) Kind() string { return KindInstitutionalProxy }

func (StructuredRecord) sealed()         {}
func (TextDerivedRecord) sealed()        {}
func (InstitutionalProxyRecord) sealed() {}

// Normalized is a boundary-validated candidate plus how much the mapping can be trusted.
type Normalized struct {
	Candidate  types.ListingCandidate
	Confidence float64
}

// Normalize maps a raw record onto a ListingCandidate. source fills in when the record has none.
func Normalize(rec RawExtractionRecord, source string) (Normalized, error) {
	var c types.ListingCandidate
	switch r := rec.(type) {
	case StructuredRecord:
		c = fromStructured(r)
	case *StructuredRecord:
		c = fromStructured(*r)
	case TextDerivedRecord:
		c = fromText(r)
	case *TextDerivedRecord:
		c = fromText(*r)
	case InstitutionalProxyRecord:
		c = fromInstitutional(r)
	case *InstitutionalProxyRecord:
		c = fromInstitutional(*r)
	default:
		return Normalized{}, fmt.Errorf("%w: unsupported record %T", errs.ErrInvalidArgument, rec)
	}
	if strings.TrimSpace(c.Source) == "" {
		c.Source = strings.TrimSpace(source)
	}
	if err := ValidateCandidate(c); err != nil {
		return Normalized{}, err
	}
	return Normalized{Candidate: c, Confidence: confidence(c)}, nil
}

// ValidateCandidate enforces the fields every later stage keys on.
func ValidateCandidate(c types.ListingCandidate) error {
	var missing []string
	if strings.TrimSpace(c.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(c.Brand) == "" {
		missing = append(missing, "brand")
	}
	if strings.TrimSpace(c.Model) == "" {
		missing = append(missing, "model")
	}
	if strings.TrimSpace(c.Source) == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", errs.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return nil
}

func confidence(c types.ListingCandidate) float64 {
	conf := baseConfidence
	if c.Price <= 0 {
		conf -= missingPricePenalty
	}
	if len(c.ImageURLs) == 0 {
		conf -= missingImagePenalty
	}
	if !c.HasContact {
		conf -= missingContactDrop
	}
	return math.Max(0, math.Min(1, conf))
}

func fromStructured(r StructuredRecord) types.ListingCandidate {
	return types.ListingCandidate{
		ID:                 strings.TrimSpace(r.ID),
		Brand:              strings.TrimSpace(r.Brand),
		Model:              strings.TrimSpace(r.Model),
		Year:               r.Year,
		Price:              r.Price,
		Mileage:            r.Mileage,
		FuelType:           canonicalFuel(r.FuelType),
		Transmission:       canonicalTransmission(r.Transmission),
		City:               strings.TrimSpace(r.City),
		Title:              strings.TrimSpace(r.Title),
		Description:        strings.TrimSpace(r.Description),
		Features:           r.Features,
		ImageURLs:          cleanURLs(r.ImageURLs),
		SellerType:         strings.ToLower(strings.TrimSpace(r.SellerType)),
		ExternallyVerified: r.Verified,
		HasContact:         strings.TrimSpace(r.Contact) != "",
		ListedAt:           r.ListedAt,
	}
}

func fromText(r TextDerivedRecord) types.ListingCandidate {
	text := strings.TrimSpace(r.Title + "\n" + r.Text)
	c := types.ListingCandidate{
		ID:           strings.TrimSpace(r.ID),
		Brand:        strings.TrimSpace(r.Brand),
		Model:        strings.TrimSpace(r.Model),
		Year:         ParseYear(text),
		Price:        ParsePrice(text),
		Mileage:      ParseMileage(text),
		FuelType:     canonicalFuel(findKeyword(text, fuelWords)),
		Transmission: canonicalTransmission(findKeyword(text, transmissionWords)),
		City:         strings.TrimSpace(r.City),
		Title:        strings.TrimSpace(r.Title),
		Description:  strings.TrimSpace(r.Text),
		ImageURLs:    cleanURLs(r.ImageURLs),
		SellerType:   types.SellerTypeIndividual,
		HasContact:   strings.TrimSpace(r.Contact) != "",
		ListedAt:     r.ListedAt,
	}
	return c
}

func fromInstitutional(r InstitutionalProxyRecord) types.ListingCandidate {
	title := strings.TrimSpace(fmt.Sprintf("%s %s %d (lot %s)", r.Brand, r.Model, r.Year, r.LotNumber))
	return types.ListingCandidate{
		ID:           strings.TrimSpace(r.LotNumber),
		Brand:        strings.TrimSpace(r.Brand),
		Model:        strings.TrimSpace(r.Model),
		Year:         r.Year,
		Price:        r.ReservePrice,
		Mileage:      r.Mileage,
		FuelType:     canonicalFuel(r.FuelType),
		Transmission: canonicalTransmission(r.Transmission),
		City:         strings.TrimSpace(r.City),
		Title:        title,
		Description:  strings.TrimSpace(r.Description),
		ImageURLs:    cleanURLs(r.ImageURLs),
		Source:       strings.TrimSpace(r.Institution),
		SellerType:   types.SellerTypeInstitution,
		HasContact:   strings.TrimSpace(r.Institution) != "",
		ListedAt:     r.AuctionDate,
	}
}

var (
	reIndianUnits = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(lakhs?|lacs?|crores?|cr)\b`)
	reCurrency    = regexp.MustCompile(`(?i)(?:₹|\brs\.?|\binr)\s*([\d,]+)`)
	reYear        = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	reKM          = regexp.MustCompile(`(?i)([\d,]+)\s*(?:kms?|kilomet)`)
)

// ParsePrice reads a rupee amount from free text. "4.5 lakh" and "1.2 crore" are expanded;
// otherwise only the digits after a currency marker count. Zero means not found.
func ParsePrice(text string) int64 {
	if m := reIndianUnits.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			unit := strings.ToLower(m[2])
			mult := 1e5
			if strings.HasPrefix(unit, "cr") {
				mult = 1e7
			}
			return int64(math.Round(v * mult))
		}
	}
	if m := reCurrency.FindStringSubmatch(text); m != nil {
		return digits(m[1])
	}
	return 0
}

// ParseYear returns the first 19xx or 20xx token, or 0.
func ParseYear(text string) int {
	m := reYear.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}

// ParseMileage reads the number in front of a "km" suffix. Zero or unparseable runs are nil.
func ParseMileage(text string) *int {
	m := reKM.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n := digits(m[1])
	if n <= 0 || n > math.MaxInt32 {
		return nil
	}
	v := int(n)
	return &v
}

func digits(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var (
	fuelWords         = wordPatterns("petrol", "diesel", "cng", "lpg", "electric", "hybrid")
	transmissionWords = wordPatterns("automatic", "manual", "amt", "cvt", "dct")
)

type wordPattern struct {
	word string
	re   *regexp.Regexp
}

func wordPatterns(words ...string) []wordPattern {
	out := make([]wordPattern, 0, len(words))
	for _, w := range words {
		out = append(out, wordPattern{word: w, re: regexp.MustCompile(`(?i)\b` + w + `\b`)})
	}
	return out
}

// findKeyword returns the first listed word present in text.
func findKeyword(text string, words []wordPattern) string {
	for _, w := range words {
		if w.re.MatchString(text) {
			return w.word
		}
	}
	return ""
}

func canonicalFuel(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return ""
	case "petrol", "gasoline":
		return "Petrol"
	case "diesel":
		return "Diesel"
	case "cng":
		return "CNG"
	case "lpg":
		return "LPG"
	case "electric", "ev":
		return "Electric"
	case "hybrid":
		return "Hybrid"
	default:
		return strings.TrimSpace(v)
	}
}

func canonicalTransmission(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return ""
	case "manual", "mt":
		return "Manual"
	case "automatic", "at":
		return "Automatic"
	case "amt":
		return "AMT"
	case "cvt":
		return "CVT"
	case "dct":
		return "DCT"
	default:
		return strings.TrimSpace(v)
	}
}

func cleanURLs(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, u := range in {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

type envelope struct {
	Kind string `json:"kind"`
}

// DecodeRecords reads a JSON array of raw records tagged by "kind".
func DecodeRecords(data []byte) ([]RawExtractionRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]RawExtractionRecord, 0, len(raw))
	for i, msg := range raw {
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		var rec RawExtractionRecord
		var err error
		switch env.Kind {
		case "", KindStructured:
			var r StructuredRecord
			err = json.Unmarshal(msg, &r)
			rec = r
		case KindTextDerived:
			var r TextDerivedRecord
			err = json.Unmarshal(msg, &r)
			rec = r
		case KindInstitutionalProxy:
			var r InstitutionalProxyRecord
			err = json.Unmarshal(msg, &r)
			rec = r
		default:
			return nil, fmt.Errorf("%w: record %d has unknown kind %q", errs.ErrInvalidArgument, i, env.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
