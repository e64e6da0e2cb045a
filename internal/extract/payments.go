// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/inboxforge/mailpipe/internal/llmclient"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

const paymentPromptVersion = "payment-v1"

var currencySymbols = map[string]string{"£": "GBP", "€": "EUR", "$": "USD"}

var allowedFrequencies = map[string]string{
	"daily": "daily", "every day": "daily",
	"weekly": "weekly",
	"biweekly": "biweekly", "bi-weekly": "biweekly", "fortnightly": "biweekly",
	"monthly": "monthly", "quarterly": "quarterly",
	"yearly": "yearly", "annual": "yearly", "annually": "yearly",
}

var allowedCategories = map[string]string{
	"food": "Food", "entertainment": "Entertainment",
	"technology": "Technology", "tech": "Technology",
	"lifestyle": "Lifestyle",
	"domestic bills": "Domestic Bills", "domestic": "Domestic Bills", "utilities": "Domestic Bills",
	"other": "Other",
}

var numericPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
var threeLetterCode = regexp.MustCompile(`\b([A-Za-z]{3})\b`)

// PaymentExtractor calls the generation model once per message and
// normalizes the result into a PaymentRecord.
type PaymentExtractor struct {
	LLM   *llmclient.Client
	Model string
}

func buildPaymentExtractionPrompt(subject, fromDomain, internalDateISO, body string) string {
	var b strings.Builder
	b.WriteString("Extract payment or purchase details from this email, if any exist.\n")
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	fmt.Fprintf(&b, "From domain: %s\n", fromDomain)
	fmt.Fprintf(&b, "Received: %s\n\n", internalDateISO)
	b.WriteString("Body:\n")
	b.WriteString(body)
	b.WriteString("\n\nRespond with a single JSON object with keys: ")
	b.WriteString("item_name, vendor_name, item_category (Food, Entertainment, Technology, Lifestyle, Domestic Bills, Other), ")
	b.WriteString("cost_amount, cost_currency, is_recurring (true/false), frequency, payment_date (YYYY-MM-DD), confidence (0-1), notes.\n")
	b.WriteString("If this email is not a payment or purchase confirmation, set vendor_name to null.\n")
	b.WriteString("Output only the JSON object, no other text.\n")
	return b.String()
}

// Extract runs one payment extraction call for a message. A nil result
// with a nil error means the model found no payment to extract.
func (x *PaymentExtractor) Extract(ctx context.Context, subject, fromDomain string, internalDate time.Time, body string) (*schema.PaymentRecord, error) {
	prompt := buildPaymentExtractionPrompt(subject, fromDomain, internalDate.UTC().Format(time.RFC3339), body)

	raw, err := x.LLM.Generate(ctx, x.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract: payment model call: %w", err)
	}

	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("extract: payment response parse: %w", err)
	}

	vendorName := stringField(obj, "vendor_name")
	if vendorName == nil {
		return nil, nil
	}

	rec := &schema.PaymentRecord{
		Status:        schema.EventStatusSucceeded,
		ItemName:      stringField(obj, "item_name"),
		VendorName:    vendorName,
		Model:         x.Model,
		PromptVersion: paymentPromptVersion,
		RawOutput:     raw,
	}

	if cat := stringField(obj, "item_category"); cat != nil {
		normalized := normalizeCategory(*cat)
		rec.ItemCategory = &normalized
	}

	amountText := rawFieldAsText(obj, "cost_amount")
	amountMinor, parsedCurrency := parseAmountMinor(amountText)
	rec.AmountMinor = amountMinor

	currency := normalizeCurrency(stringField(obj, "cost_currency"))
	if currency == nil {
		currency = parsedCurrency
	}
	rec.Currency = currency

	rec.PaymentDate = parseISODate(stringField(obj, "payment_date"))

	frequency := normalizeFrequency(stringField(obj, "frequency"))
	isRecurring := boolField(obj, "is_recurring")
	if isRecurring == nil && frequency != nil {
		recurring := true
		isRecurring = &recurring
	}
	if isRecurring != nil {
		rec.IsRecurring = *isRecurring
		if !*isRecurring {
			frequency = nil
		}
	}
	rec.Frequency = frequency

	rec.Fingerprint = computeFingerprint(*vendorName, rec.AmountMinor, rec.Currency, rec.PaymentDate)

	return rec, nil
}

func normalizeCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, c := range schema.PaymentCategories {
		if raw == c {
			return c
		}
	}
	if c, ok := allowedCategories[strings.ToLower(raw)]; ok {
		return c
	}
	return "Other"
}

func normalizeFrequency(raw *string) *string {
	if raw == nil {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(*raw))
	if key == "" {
		return nil
	}
	if f, ok := allowedFrequencies[key]; ok {
		return &f
	}
	if strings.HasPrefix(key, "every ") {
		if f, ok := allowedFrequencies[strings.TrimPrefix(key, "every ")]; ok {
			return &f
		}
	}
	return nil
}

func normalizeCurrency(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := strings.ToUpper(strings.TrimSpace(*raw))
	if s == "" {
		return nil
	}
	return &s
}

// parseAmountMinor parses a cost_amount field, tolerating currency
// symbols, decimal-comma formatting, and thousands grouping (ported
// from the legacy extractor's _parse_amount), returning the value as
// minor units (e.g. pence) alongside any currency symbol it detected.
func parseAmountMinor(raw *string) (*int64, *string) {
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, nil
	}

	var detectedCurrency *string
	for sym, code := range currencySymbols {
		if strings.Contains(s, sym) {
			c := code
			detectedCurrency = &c
			s = strings.ReplaceAll(s, sym, "")
		}
	}

	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	s = strings.ReplaceAll(s, ",", "")

	match := numericPattern.FindString(s)
	if match == "" {
		return nil, detectedCurrency
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil, detectedCurrency
	}
	minor := int64(f*100 + 0.5)
	return &minor, detectedCurrency
}

func computeFingerprint(vendorName string, amountMinor *int64, currency *string, date *time.Time) *string {
	if vendorName == "" || amountMinor == nil || currency == nil || date == nil {
		return nil
	}
	key := normalizeVendorKey(vendorName)
	if key == "" {
		return nil
	}
	amountStr := fmt.Sprintf("%.2f", float64(*amountMinor)/100)
	fp := fmt.Sprintf("%s|%s|%s|%s", key, amountStr, *currency, date.Format("2006-01-02"))
	return &fp
}

var nonAlphaNumericRun = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeVendorKey(vendor string) string {
	lower := strings.ToLower(strings.TrimSpace(vendor))
	if lower == "" {
		return ""
	}
	return nonAlphaNumericRun.ReplaceAllString(lower, "")
}

// parseCurrencyFromText is unused directly by Extract (cost_currency
// normally arrives as its own field) but kept available for callers
// that only have free text, matching the legacy _parse_currency_from_text.
func parseCurrencyFromText(raw string) *string {
	for sym, code := range currencySymbols {
		if strings.Contains(raw, sym) {
			c := code
			return &c
		}
	}
	m := threeLetterCode.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	code := strings.ToUpper(m[1])
	return &code
}
