package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityOrdering(t *testing.T) {
	ordered := []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank())
	}

	assert.True(t, SeverityHigh.AtLeast(SeverityMedium))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))

	assert.True(t, SeverityNone.Valid())
	assert.False(t, Severity("CRITICAL").Valid())
	assert.Equal(t, -1, Severity("CRITICAL").Rank())
}

func TestValueEqual(t *testing.T) {
	assert.True(t, AmountValue(100).Equal(AmountValue(100)))
	assert.False(t, AmountValue(100).Equal(AmountValue(100.01)))
	assert.True(t, DateValue("2024-04-15").Equal(DateValue("2024-04-15")))
	assert.False(t, IdentifierValue("US1").Equal(TextValue("US1")), "kinds must match")
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "1050.5", AmountValue(1050.50).String())
	assert.Equal(t, "1000", AmountValue(1000).String())
	assert.Equal(t, "2024-04-15", DateValue("2024-04-15").String())
	assert.Equal(t, "JPMORGAN_CHASE", TextValue("JPMORGAN_CHASE").String())
}

func TestBuildKey(t *testing.T) {
	fields := map[string]Value{
		"event_key":    IdentifierValue("COAC 910001"),
		"isin":         IdentifierValue("US0378331005"),
		"bank_account": IdentifierValue("ACC-5001"),
	}
	key := BuildKey(fields, []string{"event_key", "isin", "bank_account"})
	assert.Equal(t, "coac910001|us0378331005|acc-5001", key)

	// Absent key fields contribute an empty segment rather than failing.
	key = BuildKey(fields, []string{"event_key", "no_such_field"})
	assert.Equal(t, "coac910001|", key)
}

func TestSignatureString(t *testing.T) {
	sig := Signature{Buckets: map[string]MagnitudeBucket{
		"tax_rate":              BucketMajor,
		"net_amount_settlement": BucketModerate,
	}}
	// Fields render sorted, so the same signature always renders the same.
	assert.Equal(t, "net_amount_settlement:moderate|tax_rate:major", sig.String())
	assert.Equal(t, []string{"net_amount_settlement", "tax_rate"}, sig.Fields())

	assert.Equal(t, "presence", Signature{Presence: true}.String())
	assert.Equal(t, "", Signature{}.String())
}

func TestMissingSide(t *testing.T) {
	rec := &Record{}
	assert.True(t, (&DiscrepancyPair{Origin: rec}).MissingSide())
	assert.True(t, (&DiscrepancyPair{Counterparty: rec}).MissingSide())
	assert.False(t, (&DiscrepancyPair{Origin: rec, Counterparty: rec}).MissingSide())
	assert.False(t, (&DiscrepancyPair{}).MissingSide())
}
