package scraper

import (
	"time"

	"github.com/LovationAdmin/aldia-api/models"
)

const CNELURL = "https://serviciosenlinea.cnelep.gob.ec/consulta-cuen/"

var cnelFields = []FieldSpec{
	Field("business_unit", `Unidad de Negocios|Unidad`),
	Field("identification", `Identificaci[oó]n|C[IÍ]A|C[eé]dula`),
	Field("account", `Cuenta contrato|Cuenta`),
	Field("status", `Estado de cuenta contrato|Estado de cuenta|ACTIVO|INACTIVO`),
	Field("debt", `Deuda|Saldo|Valor a pagar|\$`),
	Field("months_owed", `Meses de deuda`),
	Field("due_date", `Fecha de vencimiento|Vence el|Fecha vencimiento`),
}

// CNELProfile is the electricity portal. It searches by "cuenta contrato",
// chosen through a select, a radio button or a label depending on the UI
// variant served.
func CNELProfile(url string) Profile {
	if url == "" {
		url = CNELURL
	}
	return Profile{
		Kind: models.ProviderElectricity,
		URL:  url,
		ModeSteps: []ModeStep{
			{Locator: Locator{Query: `select[name="tipoBusqueda"]`}, Action: ModeSelect, Value: "cuenta"},
			{Locator: Locator{Query: `select`}, Action: ModeSelect, Value: "cuenta"},
			{Locator: Locator{Query: `input[type="radio"][value="cuenta"]`}, Action: ModeClick},
			{Locator: Locator{Query: `input[type="radio"]`}, Action: ModeClick},
			{Locator: Locator{Query: `//label[contains(translate(., "cuentacontrato", "CUENTACONTRATO"), "CUENTA CONTRATO")]`, Kind: XPath}, Action: ModeClick},
		},
		Input: Cascade{
			{Query: `input[name="cuenta"]`},
			{Query: `input[type="text"]`},
			{Query: `input`},
		},
		Submit: Cascade{
			{Query: `button[type="submit"]`},
			{Query: `input[type="submit"]`},
			{Query: `button`},
		},
		Fields:    cnelFields,
		Normalize: normalizeCNEL,
	}
}

func normalizeCNEL(f Fields, identifier string, loc *time.Location) models.QueryResult {
	account := f["account"]
	if account == "" {
		account = identifier
	}
	return models.QueryResult{
		OK:             true,
		AccountRef:     account,
		BalanceDue:     CoerceNumber(f["debt"]),
		PeriodsOwed:    CoerceInt(f["months_owed"]),
		DueDate:        CoerceDate(f["due_date"], loc),
		BusinessUnit:   f.Ptr("business_unit"),
		Identification: f.Ptr("identification"),
		Status:         f.Ptr("status"),
	}
}
