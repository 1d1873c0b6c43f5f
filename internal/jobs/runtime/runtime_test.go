package runtime

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/listingtrust-backend/internal/ingestion"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
)

const feedBody = `[
	{"kind":"structured","id":"cd-1","brand":"Maruti","model":"Dzire","price":580000},
	{"kind":"text_derived","id":"fb-2","brand":"Hyundai","model":"i20","text":"2018 petrol 6.2 lakh"}
]`

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&StaticExtractor{ScraperName: "Spinny"}))
	require.NoError(t, reg.Register(&StaticExtractor{ScraperName: "CarDekho"}))
	require.Error(t, reg.Register(&StaticExtractor{ScraperName: "Spinny"}))
	require.Error(t, reg.Register(&StaticExtractor{}))
	require.Error(t, reg.Register(nil))

	assert.Equal(t, []string{"CarDekho", "Spinny"}, reg.Names())
	_, ok := reg.Get("OLX")
	assert.False(t, ok)
}

func TestFeedExtractorRemote(t *testing.T) {
	f, err := NewFeedExtractor("CarDekho", "https://feeds.test/cardekho.json", 0)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(f.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, "https://feeds.test/cardekho.json",
		httpmock.NewStringResponder(http.StatusOK, feedBody))

	recs, err := f.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ingestion.KindStructured, recs[0].Kind())
	assert.Equal(t, ingestion.KindTextDerived, recs[1].Kind())
}

func TestFeedExtractorRemoteFailureIsTransient(t *testing.T) {
	f, err := NewFeedExtractor("OLX", "https://feeds.test/olx.json", 0)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(f.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, "https://feeds.test/olx.json",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "maintenance"))

	_, err = f.Extract(context.Background())
	require.Error(t, err)
	var se *httpx.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestFeedExtractorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spinny.json")
	require.NoError(t, os.WriteFile(path, []byte(feedBody), 0o600))

	f, err := NewFeedExtractor("Spinny", path, 0)
	require.NoError(t, err)
	recs, err := f.Extract(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	missing, err := NewFeedExtractor("Spinny", filepath.Join(t.TempDir(), "nope.json"), 0)
	require.NoError(t, err)
	_, err = missing.Extract(context.Background())
	require.Error(t, err)
}
