package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addItemBody struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=99"`
}

type checkoutBody struct {
	Contact string `json:"contact" validate:"required,contact"`
}

func decode(t *testing.T, payload map[string]interface{}, v interface{}) error {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/cart/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return DecodeAndValidate(req, v)
}

func TestProperty_QuantityRangeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("quantity outside 1..99 is rejected", prop.ForAll(
		func(quantity int) bool {
			var req addItemBody
			err := decode(t, map[string]interface{}{
				"product_id": "3f1c2d9e-8b7a-4c6d-9e0f-1a2b3c4d5e6f",
				"quantity":   quantity,
			}, &req)

			if quantity >= 1 && quantity <= 99 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-20, 150),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ContactTagMatchesDigitCount(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("contact passes with 7 to 15 digits regardless of punctuation", prop.ForAll(
		func(digits string, separator string) bool {
			var formatted string
			for i, r := range digits {
				if i > 0 && i%3 == 0 {
					formatted += separator
				}
				formatted += string(r)
			}

			var req checkoutBody
			err := decode(t, map[string]interface{}{"contact": formatted}, &req)

			if len(digits) >= 7 && len(digits) <= 15 {
				return err == nil
			}
			return err != nil
		},
		gen.NumString().SuchThat(func(s string) bool { return len(s) > 0 && len(s) <= 20 }),
		gen.OneConstOf("", "-", " ", "."),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFormatValidationErrorsUsesJSONNames(t *testing.T) {
	var req addItemBody
	err := decode(t, map[string]interface{}{"product_id": "not-a-uuid", "quantity": 0}, &req)
	require.Error(t, err)

	formatted := FormatValidationErrors(err)
	require.Len(t, formatted, 2)

	fields := map[string]string{}
	for _, ve := range formatted {
		fields[ve.Field] = ve.Message
	}
	assert.Equal(t, "Invalid identifier", fields["product_id"])
	assert.Equal(t, "This field is required", fields["quantity"])
}

func TestDecodeAndValidateRejectsMalformedJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/checkout", bytes.NewReader([]byte(`{"contact":`)))
	var body checkoutBody
	err := DecodeAndValidate(req, &body)
	require.Error(t, err)
	assert.Empty(t, FormatValidationErrors(err))
}
