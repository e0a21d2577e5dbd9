package receipt_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/receipt"
)

func TestTextRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := receipt.TextRenderer{Formatter: money.DefaultFormatter()}
	require.NoError(t, r.Render(&buf, sampleRecord()))
	doc := buf.String()

	require.True(t, strings.HasPrefix(doc, "Receipt\n"))
	for _, want := range []string{
		"Confirmation #: SWIFT-123456",
		"Date: Mar 5, 2024 at 2:07 PM",
		"Shipping Address\nAlex Johnson\n123 Tech Boulevard\nLos Angeles, CA 90210\nUnited States",
		"Nike Dunk Low Black",
		"$94.00",
		"$188.00",
		"$17.86",
		"Free",
		"$205.86",
	} {
		require.Contains(t, doc, want)
	}
	require.True(t, strings.HasSuffix(doc, "Thank you for your purchase!\n"))
	require.Equal(t, "text/plain; charset=utf-8", r.ContentType())
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, receipt.JSONRenderer{}.Render(&buf, sampleRecord()))

	var decoded receipt.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "SWIFT-123456", decoded.ConfirmationCode)
	require.True(t, dec("205.86").Equal(decoded.Total))
}
