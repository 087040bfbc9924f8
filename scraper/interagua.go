package scraper

import (
	"time"

	"github.com/LovationAdmin/aldia-api/models"
)

const InteraguaURL = "https://www.interagua.com.ec/"

var interaguaFields = []FieldSpec{
	Field("holder", `Nombre|Titular|Cliente`),
	Field("address", `Direcci[oó]n`),
	Field("balance", `Saldo actual|Saldo:|Saldo`),
	Field("invoices_owed", `Planillas adeudadas|Planillas`),
	Field("due_date", `Fecha de vencimiento|Vence`),
	Field("issue_date", `Fecha de emisi[oó]n`),
	Field("last_payment", `^(?:Valor\s+(?:del?\s+)?)?[ÚU]ltimo pago`),
	Field("last_payment_date", `Fecha [úu]ltimo pago|Fecha de pago`),
}

// InteraguaProfile is the water portal. Its query widget has no mode
// selector; a missing input field fails the query.
func InteraguaProfile(url string) Profile {
	if url == "" {
		url = InteraguaURL
	}
	return Profile{
		Kind: models.ProviderWater,
		URL:  url,
		Input: Cascade{
			{Query: `input[type="text"]`},
			{Query: `input`},
		},
		Submit: Cascade{
			{Query: `button[type="submit"]`},
			{Query: `input[type="submit"]`},
			{Query: `button`},
		},
		ExtraSettle: 200 * time.Millisecond,
		Fields:      interaguaFields,
		Normalize:   normalizeInteragua,
	}
}

func normalizeInteragua(f Fields, identifier string, loc *time.Location) models.QueryResult {
	return models.QueryResult{
		OK:              true,
		AccountRef:      identifier,
		BalanceDue:      CoerceNumber(f["balance"]),
		PeriodsOwed:     CoerceInt(f["invoices_owed"]),
		DueDate:         CoerceDate(f["due_date"], loc),
		HolderName:      f.Ptr("holder"),
		Address:         f.Ptr("address"),
		IssueDate:       CoerceDate(f["issue_date"], loc),
		LastPayment:     CoerceNumber(f["last_payment"]),
		LastPaymentDate: CoerceDate(f["last_payment_date"], loc),
	}
}
