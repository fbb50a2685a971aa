// Command generate writes a pair of sample dividend booking files with
// seeded discrepancies, for demos and manual testing:
//
//	origin_dividend_bookings.csv       (asset owner ledger)
//	custody_dividend_bookings.csv      (custodian records)
package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

type security struct {
	eventKey    string
	isin        string
	sedol       string
	ticker      string
	name        string
	currency    string
	perShare    float64
	holding     float64
	taxRate     float64
	bankAccount string
	custodian   string
	exDate      string
	payDate     string
}

func main() {
	rng := rand.New(rand.NewSource(42))
	dir := findTestdataDir()

	currencies := []string{"USD", "NOK", "EUR", "CHF", "JPY", "KRW"}
	custodians := []string{"JPMORGAN_CHASE", "CITIBANK_NA", "HSBC_SECURITIES"}

	var securities []security
	for i := 1; i <= 40; i++ {
		ccy := currencies[rng.Intn(len(currencies))]
		sec := security{
			eventKey:    fmt.Sprintf("COAC-%06d", 910000+i),
			isin:        fmt.Sprintf("US%09dX%d", 37833100+i, i%10),
			sedol:       fmt.Sprintf("B%06dZ", 100000+i),
			ticker:      fmt.Sprintf("TCK%02d", i),
			name:        fmt.Sprintf("HOLDING %02d CORP", i),
			currency:    ccy,
			perShare:    math.Round(rng.Float64()*500+10) / 100,
			holding:     float64(1000 + rng.Intn(500000)),
			taxRate:     []float64{0, 15, 25}[rng.Intn(3)],
			bankAccount: fmt.Sprintf("ACC-%04d", 5000+i%7),
			custodian:   custodians[rng.Intn(len(custodians))],
			exDate:      fmt.Sprintf("2024-03-%02d", 1+rng.Intn(25)),
			payDate:     fmt.Sprintf("2024-04-%02d", 1+rng.Intn(28)),
		}
		securities = append(securities, sec)
	}

	writeOrigin(filepath.Join(dir, "origin_dividend_bookings.csv"), securities)
	writeCustody(filepath.Join(dir, "custody_dividend_bookings.csv"), securities, rng)
}

func gross(s security) float64 {
	return math.Round(s.perShare*s.holding*100) / 100
}

func net(s security) float64 {
	g := gross(s)
	return math.Round(g*(1-s.taxRate/100)*100) / 100
}

func writeOrigin(path string, securities []security) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{
		"COAC_EVENT_KEY", "ISIN", "SEDOL", "TICKER", "ORGANISATION_NAME",
		"DIVIDENDS_PER_SHARE", "HOLDING_QUANTITY", "EX_DATE", "PAYMENT_DATE",
		"QUOTATION_CURRENCY", "SETTLEMENT_CURRENCY",
		"GROSS_AMOUNT_QUOTATION", "NET_AMOUNT_QUOTATION", "NET_AMOUNT_SETTLEMENT",
		"TAX_RATE", "TAX", "BANK_ACCOUNT", "CUSTODIAN",
	})

	count := 0
	for i, s := range securities {
		// 5% of bookings exist only on the custodian side.
		if i%20 == 19 {
			continue
		}
		g, n := gross(s), net(s)
		w.Write([]string{
			s.eventKey, s.isin, s.sedol, s.ticker, s.name,
			fmt.Sprintf("%.2f", s.perShare), fmt.Sprintf("%.0f", s.holding), s.exDate, s.payDate,
			s.currency, s.currency,
			fmt.Sprintf("%.2f", g), fmt.Sprintf("%.2f", n), fmt.Sprintf("%.2f", n),
			fmt.Sprintf("%.1f", s.taxRate), fmt.Sprintf("%.2f", g-n), s.bankAccount, s.custodian,
		})
		count++
	}
	fmt.Printf("Generated %d origin bookings -> %s\n", count, path)
}

func writeCustody(path string, securities []security, rng *rand.Rand) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// The custodian feed uses its own header vocabulary, semicolons and all.
	w.Write([]string{
		"EVENT_KEY", "ISIN", "SEDOL", "TICKER", "INSTRUMENT_DESCRIPTION",
		"DIV_RATE", "NOMINAL_BASIS", "EX_DATE", "PAY_DATE",
		"QUOTATION_CURRENCY", "SETTLEMENT_CCY",
		"GROSS_AMOUNT", "NET_AMOUNT_QC", "NET_AMOUNT_SC",
		"WTHTAX_RATE", "WTHTAX_COST", "BANK_ACCOUNTS", "CUSTODIAN_NAME",
	})

	count := 0
	for i, s := range securities {
		// 5% of bookings are missing at the custodian.
		if i%20 == 9 {
			continue
		}

		taxRate := s.taxRate
		n := net(s)
		g := gross(s)
		roll := rng.Float64()

		// 10% tax rate disagreement (the classic treaty-rate mixup).
		if roll < 0.10 && taxRate == 15 {
			taxRate = 25
			n = math.Round(g*(1-taxRate/100)*100) / 100
		}
		// 10% net amount drift beyond FX rounding.
		if roll >= 0.10 && roll < 0.20 {
			n = math.Round(n*(1+0.02+rng.Float64()*0.03)*100) / 100
		}

		w.Write([]string{
			s.eventKey, s.isin, s.sedol, s.ticker, s.name,
			fmt.Sprintf("%.2f", s.perShare), fmt.Sprintf("%.0f", s.holding), s.exDate, s.payDate,
			s.currency, s.currency,
			fmt.Sprintf("%.2f", g), fmt.Sprintf("%.2f", n), fmt.Sprintf("%.2f", n),
			fmt.Sprintf("%.1f", taxRate), fmt.Sprintf("%.2f", g-n), s.bankAccount, s.custodian,
		})
		count++
	}
	fmt.Printf("Generated %d custody bookings -> %s\n", count, path)
}

func findTestdataDir() string {
	candidates := []string{"testdata", "./testdata"}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
