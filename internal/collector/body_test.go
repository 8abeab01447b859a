package collector

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollyBodyReaderSplitsSentencesAndFindsCodes(t *testing.T) {
	page := `<html><body><div class="body">トヨタ自動車&lt;7203&gt;が決算を発表。営業利益は増加。<br>ソニーG&lt;6758&gt;も上昇。トヨタ&lt;7203&gt;は続伸。</div></body></html>`
	srv := newListingServer(t, http.StatusOK, page)

	r := &CollyBodyReader{}
	body, err := r.Read(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []string{"7203", "6758"}, body.Codes)
	assert.Equal(t, []string{
		"トヨタ自動車<7203>が決算を発表。",
		"営業利益は増加。",
		"ソニーG<6758>も上昇。",
		"トヨタ<7203>は続伸。",
	}, body.Lines)
}

func TestCollyBodyReaderMissingBody(t *testing.T) {
	srv := newListingServer(t, http.StatusOK, `<html><body><div class="other">x</div></body></html>`)

	r := &CollyBodyReader{}
	_, err := r.Read(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestExtractStockCodesIgnoresNonFourDigit(t *testing.T) {
	assert.Equal(t, []string{"1234"}, ExtractStockCodes("<123> <1234> <12345> (5678)"))
	assert.Empty(t, ExtractStockCodes("no codes here"))
}
