package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cnelPage = `CNEL EP
Unidad de Negocios
GUAYAQUIL
Identificación
0912345678
Cuenta contrato
1000123456
Estado de cuenta contrato
ACTIVO
Deuda
$ 45,50
Meses de deuda
2
Fecha de vencimiento
15/11/2025`

func TestExtract_CNELPage(t *testing.T) {
	fields := Extract(cnelPage, cnelFields)

	assert.Equal(t, "GUAYAQUIL", fields["business_unit"])
	assert.Equal(t, "0912345678", fields["identification"])
	assert.Equal(t, "1000123456", fields["account"])
	assert.Equal(t, "ACTIVO", fields["status"])
	assert.Equal(t, "$ 45,50", fields["debt"])
	assert.Equal(t, "2", fields["months_owed"])
	assert.Equal(t, "15/11/2025", fields["due_date"])
}

func TestExtract_IsDeterministic(t *testing.T) {
	first := Extract(cnelPage, cnelFields)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Extract(cnelPage, cnelFields))
	}
}

func TestExtract_FirstMatchWins(t *testing.T) {
	page := "Saldo\n10.00\nOtro dato\nSaldo\n99.00"
	fields := Extract(page, []FieldSpec{Field("balance", "Saldo")})
	assert.Equal(t, "10.00", fields["balance"])
}

func TestExtract_EachFieldRestartsFromTop(t *testing.T) {
	page := "Vence\n20/11/2025\nNombre\nANA"
	fields := Extract(page, []FieldSpec{
		Field("holder", "Nombre"),
		Field("due", "Vence"),
	})
	assert.Equal(t, "ANA", fields["holder"])
	assert.Equal(t, "20/11/2025", fields["due"])
}

func TestExtract_UnmatchedFieldIsAbsent(t *testing.T) {
	fields := Extract("Nada relevante\naquí", []FieldSpec{Field("debt", "Deuda")})

	_, ok := fields["debt"]
	assert.False(t, ok)
	assert.Nil(t, fields.Ptr("debt"))
}

func TestExtract_LastLineFallsBackToItself(t *testing.T) {
	fields := Extract("Encabezado\nDeuda: $12.00", []FieldSpec{Field("debt", "Deuda")})
	assert.Equal(t, "Deuda: $12.00", fields["debt"])
}

func TestExtract_IgnoresBlankLinesAndCase(t *testing.T) {
	page := "\n   \n  SALDO ACTUAL  \n\n   $ 7,00  \n"
	fields := Extract(page, []FieldSpec{Field("balance", "saldo actual")})
	assert.Equal(t, "$ 7,00", fields["balance"])
}

func TestExtract_EmptyInputs(t *testing.T) {
	assert.Empty(t, Extract("", cnelFields))
	assert.Empty(t, Extract(cnelPage, nil))
	assert.Empty(t, Extract(cnelPage, []FieldSpec{{Name: "nil pattern"}}))
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string // "" means nil
	}{
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"$ 45,50", "45.5"},
		{"$45.50", "45.5"},
		{"USD 1,234", "1234"},
		{"1,234,567", "1234567"},
		{"1.234.567", "1234567"},
		{"-12.5", "-12.5"},
		{"Total: 12.", "12"},
		{"0", "0"},
		{"no digits here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CoerceNumber(tt.in)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCoerceInt(t *testing.T) {
	got := CoerceInt("abc12def")
	require.NotNil(t, got)
	assert.Equal(t, 12, *got)

	got = CoerceInt("3 meses, 45 días")
	require.NotNil(t, got)
	assert.Equal(t, 3, *got)

	assert.Nil(t, CoerceInt("ninguno"))
	assert.Nil(t, CoerceInt(""))
}

func TestCoerceDate(t *testing.T) {
	loc, err := time.LoadLocation("America/Guayaquil")
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string // "" means nil
	}{
		{"15/11/2025", "2025-11-15"},
		{"5-1-2026", "2026-01-05"},
		{"15.11.25", "2025-11-15"},
		{"2025-11-15", "2025-11-15"},
		{"Vence el 15 de noviembre de 2025", "2025-11-15"},
		{"15-nov-2025", "2025-11-15"},
		{"3 Dic. 2025", "2025-12-03"},
		{"31/02/2025", ""},
		{"pendiente", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CoerceDate(tt.in, loc)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
			assert.Equal(t, loc, got.Location())
			assert.Zero(t, got.Hour())
		})
	}
}
