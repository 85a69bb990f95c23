package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateCOD(t *testing.T) {
	b := Calculate(dec("500"), MethodCOD)
	assert.True(t, b.ServiceFee.Equal(dec("15")), b.ServiceFee.String())
	assert.True(t, b.DeliveryFee.Equal(dec("50")))
	assert.True(t, b.Total().Equal(dec("65")))
	assert.True(t, b.BaseAmount.IsZero())
}

func TestCalculatePaymongoRoundsUpToFive(t *testing.T) {
	// 485 + 50 = 535; 535 * 0.035 + 15 = 33.725 -> 35
	b := Calculate(dec("485"), MethodGCash)
	assert.True(t, b.BaseAmount.Equal(dec("535")))
	assert.True(t, b.CalculatedTotal.Equal(dec("33.725")), b.CalculatedTotal.String())
	assert.True(t, b.ServiceFee.Equal(dec("35")), b.ServiceFee.String())
	assert.True(t, dec("485").Add(b.Total()).Equal(dec("570")))
}

func TestCalculatePaymongoMinimum(t *testing.T) {
	// 10 + 50 = 60; 60 * 0.035 + 15 = 17.1 -> 20 (already the minimum)
	b := Calculate(dec("10"), MethodBank)
	assert.True(t, b.ServiceFee.Equal(dec("20")), b.ServiceFee.String())
}

func TestCalculateExactMultipleNotBumped(t *testing.T) {
	// 950 + 50 = 1000; 1000 * 0.035 + 15 = 50 exactly
	b := Calculate(dec("950"), MethodGCash)
	assert.True(t, b.ServiceFee.Equal(dec("50")), b.ServiceFee.String())
}

func TestCalculateUnknownMethodFallsBack(t *testing.T) {
	b := Calculate(dec("100"), PaymentMethod("crypto"))
	assert.True(t, b.ServiceFee.Equal(dec("15")))
	assert.False(t, PaymentMethod("crypto").Valid())
	assert.True(t, MethodBank.Valid())
}
