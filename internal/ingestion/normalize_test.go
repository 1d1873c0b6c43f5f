package ingestion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"Asking 4.5 lakh, negotiable", 450000},
		{"price 4.5 Lakhs only", 450000},
		{"1.2 crore fancy number plate", 12000000},
		{"Rs. 3,25,000 final", 325000},
		{"₹ 275000", 275000},
		{"INR 90,000", 90000},
		{"single owners 2 keys", 0},
		{"no price here", 0},
		{"Rs. 99,99,99,99,99,99,99,99,99,999 cash", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePrice(tt.in))
		})
	}
}

func TestParseYearAndMileage(t *testing.T) {
	assert.Equal(t, 2017, ParseYear("Swift VXI 2017 model, 2nd owner"))
	assert.Equal(t, 0, ParseYear("brand new condition"))

	km := ParseMileage("driven 45,000 kms only")
	require.NotNil(t, km)
	assert.Equal(t, 45000, *km)
	assert.Nil(t, ParseMileage("low running"))
	assert.Nil(t, ParseMileage("99999999999999999999999 km on the clock"))
}

func TestNormalizeTextDerived(t *testing.T) {
	rec := TextDerivedRecord{
		ID:        "fb-77",
		Brand:     "Maruti",
		Model:     "Swift",
		Title:     "Swift VXI 2017 for sale",
		Text:      "Petrol, manual. 52,000 km. Asking 4.25 lakh. Call me.",
		City:      "Pune",
		ImageURLs: []string{"https://img/1.jpg", " https://img/1.jpg ", ""},
		Contact:   "98xxxxxx10",
	}
	n, err := Normalize(rec, "Facebook")
	require.NoError(t, err)
	c := n.Candidate
	assert.Equal(t, "Facebook", c.Source)
	assert.Equal(t, 2017, c.Year)
	assert.Equal(t, int64(425000), c.Price)
	require.NotNil(t, c.Mileage)
	assert.Equal(t, 52000, *c.Mileage)
	assert.Equal(t, "Petrol", c.FuelType)
	assert.Equal(t, "Manual", c.Transmission)
	assert.Equal(t, []string{"https://img/1.jpg"}, c.ImageURLs)
	assert.Equal(t, types.SellerTypeIndividual, c.SellerType)
	assert.InDelta(t, 0.9, n.Confidence, 1e-9)
}

func TestNormalizeInstitutionalProxy(t *testing.T) {
	n, err := Normalize(&InstitutionalProxyRecord{
		LotNumber:    "LOT-118",
		Institution:  "SBI e-Auction",
		Brand:        "Hyundai",
		Model:        "Creta",
		Year:         2019,
		ReservePrice: 780000,
	}, "ignored")
	require.NoError(t, err)
	c := n.Candidate
	assert.Equal(t, "SBI e-Auction", c.Source)
	assert.Equal(t, "LOT-118", c.ID)
	assert.Equal(t, types.SellerTypeInstitution, c.SellerType)
	assert.True(t, c.HasContact)
	// no images
	assert.InDelta(t, 0.6, n.Confidence, 1e-9)
}

func TestNormalizeConfidencePenalties(t *testing.T) {
	n, err := Normalize(StructuredRecord{ID: "1", Brand: "Tata", Model: "Nexon"}, "CarWale")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, n.Confidence, 1e-9)

	n, err = Normalize(StructuredRecord{ID: "1", Brand: "Tata", Model: "Nexon", Price: 900000, ImageURLs: []string{"u"}}, "CarWale")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, n.Confidence, 1e-9)
}

func TestNormalizeRejectsMissingIdentity(t *testing.T) {
	_, err := Normalize(StructuredRecord{Brand: "Tata"}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	assert.Contains(t, err.Error(), "id, model, source")
}

func TestDecodeRecords(t *testing.T) {
	data := []byte(`[
		{"kind":"structured","id":"1","brand":"Maruti","model":"Alto","price":300000},
		{"kind":"text_derived","id":"2","brand":"Honda","model":"City","text":"2015 diesel 6 lakh"},
		{"kind":"institutional_proxy","lot_number":"L1","institution":"HDFC Bank Auctions","brand":"Tata","model":"Nexon"}
	]`)
	recs, err := DecodeRecords(data)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, KindStructured, recs[0].Kind())
	assert.Equal(t, KindTextDerived, recs[1].Kind())
	assert.Equal(t, KindInstitutionalProxy, recs[2].Kind())

	_, err = DecodeRecords([]byte(`[{"kind":"telepathy"}]`))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}
