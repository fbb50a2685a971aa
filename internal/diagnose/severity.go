package diagnose

import (
	"github.com/sondrmsk/divrec/internal/config"
	"github.com/sondrmsk/divrec/internal/currency"
	"github.com/sondrmsk/divrec/internal/domain"
)

// Classify derives severity from the field deltas and the configured
// thresholds alone. Same deltas, same policy, same result — the function
// is pure and is the sole authority on classification.
//
// Policy, in order of precedence:
//
//	HIGH:   one side entirely missing, a critical identifying field
//	        mismatched, or a monetary delta above the major threshold
//	MEDIUM: monetary delta above the minor threshold, or one side
//	        missing a non-critical field
//	LOW:    any remaining delta (non-monetary, or monetary below minor)
//	NONE:   no deltas
func Classify(pair *domain.DiscrepancyPair, policy config.SeverityPolicy) domain.Severity {
	if pair.MissingSide() {
		return domain.SeverityHigh
	}
	if len(pair.Deltas) == 0 {
		return domain.SeverityNone
	}

	critical := make(map[string]bool, len(policy.CriticalFields))
	for _, f := range policy.CriticalFields {
		critical[f] = true
	}

	maxMonetaryUSD := 0.0
	missingField := false

	for field, delta := range pair.Deltas {
		if critical[field] && delta.DeltaKind == domain.DeltaValueMismatch {
			return domain.SeverityHigh
		}
		switch delta.DeltaKind {
		case domain.DeltaMissingField:
			missingField = true
		case domain.DeltaValueMismatch:
			if delta.Kind == domain.FieldAmount {
				if usd := monetaryUSD(pair, delta.Magnitude, policy.CurrencyField); usd > maxMonetaryUSD {
					maxMonetaryUSD = usd
				}
			}
		}
	}

	switch {
	case maxMonetaryUSD > policy.MajorAmountUSD:
		return domain.SeverityHigh
	case maxMonetaryUSD > policy.MinorAmountUSD:
		return domain.SeverityMedium
	case missingField:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// monetaryUSD expresses a delta magnitude in USD using the pair's
// currency field. Falls back to the raw magnitude when no currency is
// configured or the code is unknown.
func monetaryUSD(pair *domain.DiscrepancyPair, magnitude float64, currencyField string) float64 {
	if currencyField == "" {
		return magnitude
	}
	code := pairCurrency(pair, currencyField)
	if code == "" || !currency.Supported(code) {
		return magnitude
	}
	usd, err := currency.ToUSD(magnitude, code)
	if err != nil {
		return magnitude
	}
	return usd
}

func pairCurrency(pair *domain.DiscrepancyPair, field string) string {
	if pair.Origin != nil {
		if v, ok := pair.Origin.Fields[field]; ok {
			return v.Text
		}
	}
	if pair.Counterparty != nil {
		if v, ok := pair.Counterparty.Fields[field]; ok {
			return v.Text
		}
	}
	return ""
}
