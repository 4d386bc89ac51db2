package sqlmodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/types"
)

func TestInvoiceRowKeepsJSONColumns(t *testing.T) {
	issued := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	inv := &invoice.Invoice{
		ID:       id.NewInvoiceID(),
		TenantID: "acme",
		Number:   "7/2025",
		Year:     2025,
		Sequence: 7,
		Customer: invoice.Customer{Name: "Rossi Srl", VATNumber: "IT01234567890"},
		Lines: []invoice.LineItem{
			{Description: "Consulting", Quantity: 2, UnitPrice: types.EUR(5000), VATRate: 22},
		},
		Currency:  "eur",
		IssueDate: issued,
		DueDate:   issued.AddDate(0, 0, 30),
	}
	inv.Recalculate()

	row := EncodeInvoice(inv)
	assert.Equal(t, "Rossi Srl", row.CustomerName)
	assert.Equal(t, 3, row.Month)
	assert.JSONEq(t, `{"name":"Rossi Srl","vat_number":"IT01234567890"}`, string(row.Customer))

	got, err := DecodeInvoice(row)
	require.NoError(t, err)
	assert.Equal(t, inv.Customer, got.Customer)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, types.EUR(10000), got.Lines[0].Amount)
	assert.Equal(t, types.EUR(12200), got.Total)
	assert.Equal(t, invoice.StatusUnpaid, got.PaymentStatus)
}

func TestRedemptionRowDeliveryIsOptional(t *testing.T) {
	r := &reward.Redemption{
		ID:       id.NewRedemptionID(),
		TenantID: "acme",
		RewardID: id.NewRewardID(),
		UserID:   "alice",
		Status:   reward.StatusApproved,
	}
	row := EncodeRedemption(r)
	assert.Nil(t, row.Delivery)

	got, err := DecodeRedemption(row)
	require.NoError(t, err)
	assert.Nil(t, got.Delivery)

	r.Pickup = reward.PickupHomeDelivery
	r.Delivery = &reward.Delivery{Address: "Via Roma 1", City: "Milano", PostalCode: "20100", Phone: "+39 02 000"}
	got, err = DecodeRedemption(EncodeRedemption(r))
	require.NoError(t, err)
	require.NotNil(t, got.Delivery)
	assert.Equal(t, "Milano", got.Delivery.City)
}

func TestDecodeRejectsBadID(t *testing.T) {
	_, err := DecodeInvoice(&Invoice{ID: "not-an-id"})
	assert.Error(t, err)
}
