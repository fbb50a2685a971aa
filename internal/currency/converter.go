package currency

import "fmt"

// ratesPerUSD maps currency codes to the number of local currency units
// per 1 USD. Severity thresholds are expressed in USD, so monetary delta
// magnitudes are normalized through these rates before classification.
// Approximate 2024 rates for the markets the dividend book covers.
var ratesPerUSD = map[string]float64{
	"USD": 1.0,
	"NOK": 10.6,   // Norwegian Krone
	"EUR": 0.92,   // Euro
	"GBP": 0.79,   // British Pound
	"CHF": 0.88,   // Swiss Franc
	"SEK": 10.4,   // Swedish Krona
	"DKK": 6.9,    // Danish Krone
	"JPY": 151.0,  // Japanese Yen
	"KRW": 1350.0, // South Korean Won
	"AUD": 1.52,   // Australian Dollar
	"CAD": 1.36,   // Canadian Dollar
	"HKD": 7.8,    // Hong Kong Dollar
}

// ToUSD converts a local currency amount to USD.
func ToUSD(amount float64, currency string) (float64, error) {
	rate, ok := ratesPerUSD[currency]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", currency)
	}
	return amount / rate, nil
}

// FromUSD converts a USD amount to local currency.
func FromUSD(usdAmount float64, currency string) (float64, error) {
	rate, ok := ratesPerUSD[currency]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", currency)
	}
	return usdAmount * rate, nil
}

// Supported reports whether a conversion rate exists for the currency.
func Supported(currency string) bool {
	_, ok := ratesPerUSD[currency]
	return ok
}
