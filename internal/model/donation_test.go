package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDonationStatusIsTerminal(t *testing.T) {
	assert.False(t, DonationPending.IsTerminal())
	assert.True(t, DonationSuccess.IsTerminal())
	assert.True(t, DonationFailed.IsTerminal())
}

func TestPlaceholderPaymentID(t *testing.T) {
	assert.Equal(t, "pending_order_abc", PlaceholderPaymentID("order_abc"))
}
