// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

func TestPaymentUpsertThenGetByMessageID(t *testing.T) {
	ctx := context.Background()
	pr := GetPaymentRepository()
	msgID := insertTestMessage(t, "payment-upsert-1")

	vendor := "Acme Ltd"
	amount := int64(1999)
	currency := "GBP"
	fp := "acmeltd|19.99|GBP|2026-07-30"
	require.NoError(t, pr.Upsert(ctx, &schema.PaymentRecord{
		MessageID:   msgID,
		Status:      schema.EventStatusSucceeded,
		VendorName:  &vendor,
		AmountMinor: &amount,
		Currency:    &currency,
		Fingerprint: &fp,
	}))

	got, err := pr.GetByMessageID(ctx, msgID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Ltd", *got.VendorName)
	assert.Equal(t, int64(1999), *got.AmountMinor)
}

func TestFindByFingerprintReturnsMostRecentMatch(t *testing.T) {
	ctx := context.Background()
	pr := GetPaymentRepository()
	msgID := insertTestMessage(t, "payment-fingerprint-1")

	vendor := "Acme Ltd"
	amount := int64(500)
	currency := "USD"
	fp := "acmeltd|5.00|USD|2026-07-30"
	require.NoError(t, pr.Upsert(ctx, &schema.PaymentRecord{
		MessageID:   msgID,
		Status:      schema.EventStatusSucceeded,
		VendorName:  &vendor,
		AmountMinor: &amount,
		Currency:    &currency,
		Fingerprint: &fp,
	}))

	found, err := pr.FindByFingerprint(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, msgID, found.MessageID)
}

func TestFindByFingerprintMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	pr := GetPaymentRepository()
	got, err := pr.FindByFingerprint(ctx, "no-such-fingerprint")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRecurringOnlyReturnsFlaggedPayments(t *testing.T) {
	ctx := context.Background()
	pr := GetPaymentRepository()

	recurringMsg := insertTestMessage(t, "payment-recurring-1")
	vendor := "Streaming Co"
	require.NoError(t, pr.Upsert(ctx, &schema.PaymentRecord{
		MessageID:   recurringMsg,
		Status:      schema.EventStatusSucceeded,
		VendorName:  &vendor,
		IsRecurring: true,
	}))

	oneOffMsg := insertTestMessage(t, "payment-oneoff-1")
	vendor2 := "Corner Shop"
	require.NoError(t, pr.Upsert(ctx, &schema.PaymentRecord{
		MessageID:   oneOffMsg,
		Status:      schema.EventStatusSucceeded,
		VendorName:  &vendor2,
		IsRecurring: false,
	}))

	out, err := pr.ListRecurring(ctx, 50)
	require.NoError(t, err)

	var sawRecurring, sawOneOff bool
	for _, p := range out {
		if p.MessageID == recurringMsg {
			sawRecurring = true
		}
		if p.MessageID == oneOffMsg {
			sawOneOff = true
		}
	}
	assert.True(t, sawRecurring)
	assert.False(t, sawOneOff)
}
