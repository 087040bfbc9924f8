package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/llm"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/utils"
)

// ============================================================================
// SAVINGS ADVICE SERVICE
// Advisory text only: nothing produced here is authoritative financial data.
// ============================================================================

const (
	AdviceSourceAI    = "ai"
	AdviceSourceLocal = "local"
)

const adviceSystemPrompt = `Eres un asesor financiero especializado en ahorro de servicios básicos (luz y agua) en Ecuador. ` +
	`Proporciona consejos prácticos y específicos en formato JSON con la siguiente estructura: ` +
	`[{"titulo":"...", "descripcion":"...", "ahorroPotencial":"..."}]. Sé conciso pero informativo.`

const analysisSystemPrompt = `Actúa como un analista financiero personal y amable. Analiza los datos de consumo de ` +
	`servicios básicos (luz, agua) del usuario, detecta variaciones significativas entre la consulta anterior y la actual, ` +
	`y responde en español claro, máximo 6 líneas, con un consejo práctico para ahorrar.`

// AccountSummary is one account as shown to the text generator.
type AccountSummary struct {
	Provider   string           `json:"servicio"`
	Account    string           `json:"cuenta"`
	Balance    *decimal.Decimal `json:"saldo,omitempty"`
	Variation  *decimal.Decimal `json:"variacion,omitempty"`
	Trend      models.Trend     `json:"tendencia,omitempty"`
	DueDate    string           `json:"fecha_vencimiento,omitempty"`
	LastFailed bool             `json:"ultima_consulta_fallida,omitempty"`
}

// FinancialSummary is the owner data the advice is built from.
type FinancialSummary struct {
	Accounts        []AccountSummary `json:"cuentas"`
	ActiveReminders int              `json:"recordatorios_activos"`
	OverdueCount    int              `json:"recordatorios_vencidos"`
	TotalDue        decimal.Decimal  `json:"total_pendiente"`
	Expenses        []ExpenseSummary `json:"gastos_recientes,omitempty"`
}

// adviceExpenseMonths is how many recorded months feed the advice.
const adviceExpenseMonths = 3

type AdviceResult struct {
	ReminderID string                 `json:"reminder_id,omitempty"`
	Advice     []models.SavingsAdvice `json:"advice"`
	Source     string                 `json:"source"`
	Summary    FinancialSummary       `json:"summary"`
}

type AdviceService struct {
	accounts  repositories.AccountRepository
	reminders repositories.ReminderRepository
	expenses  repositories.ExpenseRepository
	generator llm.TextGenerator
	now       func() time.Time
	logger    *zap.Logger
}

func NewAdviceService(
	accounts repositories.AccountRepository,
	reminders repositories.ReminderRepository,
	generator llm.TextGenerator,
	logger *zap.Logger,
) *AdviceService {
	if generator == nil {
		generator = llm.Disabled{}
	}
	return &AdviceService{
		accounts:  accounts,
		reminders: reminders,
		generator: generator,
		now:       time.Now,
		logger:    logger.Named("advice-service"),
	}
}

// SetExpenses adds the owner's recent monthly expenses to every summary.
// Call it during wiring.
func (s *AdviceService) SetExpenses(expenses repositories.ExpenseRepository) {
	s.expenses = expenses
}

// Summarize collects the owner's accounts, reminders and recent expenses.
func (s *AdviceService) Summarize(ctx context.Context, ownerID string) (FinancialSummary, []*models.Reminder, error) {
	var summary FinancialSummary

	accounts, err := s.accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return summary, nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	reminders, err := s.reminders.ListByOwner(ctx, ownerID)
	if err != nil {
		return summary, nil, fmt.Errorf("failed to list reminders: %w", err)
	}

	for _, a := range accounts {
		as := AccountSummary{
			Provider:  a.Provider.DisplayName(),
			Account:   utils.RedactAccount(a.AccountIdentifier),
			Variation: a.Variation,
			Trend:     a.Trend(),
		}
		if a.LastSuccess != nil {
			as.Balance = a.LastSuccess.BalanceDue
			if a.LastSuccess.DueDate != nil {
				as.DueDate = a.LastSuccess.DueDate.Format("2006-01-02")
			}
			if a.LastSuccess.BalanceDue != nil {
				summary.TotalDue = summary.TotalDue.Add(*a.LastSuccess.BalanceDue)
			}
		}
		as.LastFailed = a.LastResult != nil && !a.LastResult.OK
		summary.Accounts = append(summary.Accounts, as)
	}

	for _, r := range reminders {
		switch r.Status {
		case models.ReminderActive:
			summary.ActiveReminders++
		case models.ReminderOverdue:
			summary.OverdueCount++
		}
	}

	if s.expenses != nil {
		summary.Expenses, err = recentExpenses(ctx, s.expenses, ownerID, adviceExpenseMonths)
		if err != nil {
			return summary, nil, err
		}
	}
	return summary, reminders, nil
}

// Generate produces savings advice for the owner. When req names a reminder
// the advice is also stored on it. Generation problems never fail the call;
// local advice is used instead.
func (s *AdviceService) Generate(ctx context.Context, ownerID string, req models.AdviceRequest) (*AdviceResult, error) {
	var target *models.Reminder
	if req.ReminderID != "" {
		rem, err := s.reminders.GetByID(ctx, ownerID, req.ReminderID)
		if err != nil {
			return nil, err
		}
		target = rem
	}

	summary, _, err := s.Summarize(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	result := &AdviceResult{Summary: summary, Source: AdviceSourceAI}
	result.Advice = s.generateAdvice(ctx, summary, target)
	if len(result.Advice) == 0 {
		result.Source = AdviceSourceLocal
		result.Advice = LocalAdvice(summary, target)
	}

	generatedAt := s.now()
	for i := range result.Advice {
		result.Advice[i].GeneratedAt = generatedAt
	}

	if target != nil {
		result.ReminderID = target.ID
		if err := s.reminders.SetAdvice(ctx, ownerID, target.ID, result.Advice); err != nil {
			return nil, fmt.Errorf("failed to save advice: %w", err)
		}
	}
	return result, nil
}

func (s *AdviceService) generateAdvice(ctx context.Context, summary FinancialSummary, target *models.Reminder) []models.SavingsAdvice {
	if !s.generator.Enabled() {
		return nil
	}
	text, err := s.generator.Generate(ctx, adviceSystemPrompt, advicePrompt(summary, target))
	if err != nil {
		s.logger.Warn("Advice generation failed, using local advice", zap.Error(err))
		return nil
	}
	advice := ParseAdvice(text)
	if len(advice) == 0 {
		s.logger.Warn("Advice response had no usable items, using local advice", zap.Int("response_len", len(text)))
	}
	return advice
}

func advicePrompt(summary FinancialSummary, target *models.Reminder) string {
	var b strings.Builder
	b.WriteString("Analiza estos datos de servicios básicos del usuario y genera consejos de ahorro personalizados:\n\n")

	data, _ := json.MarshalIndent(summary, "", "  ")
	b.WriteString("DATOS DEL USUARIO:\n")
	b.Write(data)
	b.WriteString("\n")

	if target != nil {
		b.WriteString("\nRECORDATORIO ESPECÍFICO:\n")
		fmt.Fprintf(&b, "- Servicio: %s\n", target.Provider.DisplayName())
		if target.Amount != nil {
			fmt.Fprintf(&b, "- Monto: $%s\n", target.Amount.StringFixed(2))
		} else {
			b.WriteString("- Monto: No especificado\n")
		}
		fmt.Fprintf(&b, "- Fecha de pago: %s\n", target.DueDate.Format("2006-01-02"))
	}

	b.WriteString("\nINSTRUCCIONES:\n")
	b.WriteString("1. Genera entre 3 y 4 consejos prácticos y específicos.\n")
	b.WriteString("2. Cada consejo incluye título, descripción y ahorro potencial estimado.\n")
	b.WriteString("3. Usa emojis relevantes en los títulos (💡, 💧, 📊, 📅).\n")
	b.WriteString("4. Si una variación es positiva, explica posibles causas del aumento.\n")
	b.WriteString("5. Responde ÚNICAMENTE con un array JSON válido, sin texto adicional.\n\n")
	b.WriteString(`FORMATO: [{"titulo": "💡 Título", "descripcion": "Descripción", "ahorroPotencial": "$5-10 mensuales"}]`)
	return b.String()
}

// ============================================================================
// RESPONSE PARSING
// ============================================================================

type adviceItem struct {
	Titulo          string `json:"titulo"`
	Title           string `json:"title"`
	Descripcion     string `json:"descripcion"`
	Description     string `json:"description"`
	AhorroPotencial any    `json:"ahorroPotencial"`
	PotentialSaving any    `json:"potential_saving"`
}

func (it adviceItem) toAdvice() models.SavingsAdvice {
	return models.SavingsAdvice{
		Title:           firstNonEmpty(it.Titulo, it.Title),
		Description:     firstNonEmpty(it.Descripcion, it.Description),
		PotentialSaving: firstNonEmpty(savingText(it.AhorroPotencial), savingText(it.PotentialSaving)),
	}
}

func savingText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return "$" + decimal.NewFromFloat(x).StringFixed(2)
	}
	return fmt.Sprint(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var (
	jsonArrayPattern = regexp.MustCompile(`\[[\s\S]*\]`)
	bulletPrefix     = regexp.MustCompile(`^[•\-*]\s*`)
	adviceEmojis     = []string{"💡", "💧", "📊", "📅"}
)

// ParseAdvice reads advice out of a generated response. It tries the whole
// text as a JSON array, then the first [...] block, then emoji-titled lines.
// Items without a title are dropped.
func ParseAdvice(text string) []models.SavingsAdvice {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if items, ok := decodeAdvice(text); ok {
		return items
	}
	if block := jsonArrayPattern.FindString(text); block != "" {
		if items, ok := decodeAdvice(block); ok {
			return items
		}
	}
	return adviceFromLines(text)
}

func decodeAdvice(s string) ([]models.SavingsAdvice, bool) {
	var raw []adviceItem
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	var out []models.SavingsAdvice
	for _, it := range raw {
		a := it.toAdvice()
		if a.Title == "" {
			continue
		}
		if a.PotentialSaving == "" {
			a.PotentialSaving = "Variable"
		}
		out = append(out, a)
	}
	return out, true
}

func adviceFromLines(text string) []models.SavingsAdvice {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	var out []models.SavingsAdvice
	for i, line := range lines {
		if !hasAdviceEmoji(line) {
			continue
		}
		a := models.SavingsAdvice{
			Title:           bulletPrefix.ReplaceAllString(line, ""),
			PotentialSaving: "Variable",
		}
		if i+1 < len(lines) {
			a.Description = bulletPrefix.ReplaceAllString(lines[i+1], "")
		}
		if i+2 < len(lines) && strings.Contains(lines[i+2], "$") {
			a.PotentialSaving = bulletPrefix.ReplaceAllString(lines[i+2], "")
		}
		out = append(out, a)
	}
	return out
}

func hasAdviceEmoji(line string) bool {
	for _, e := range adviceEmojis {
		if strings.Contains(line, e) {
			return true
		}
	}
	return false
}

// ============================================================================
// LOCAL ADVICE
// ============================================================================

var (
	electricitySavingRate = decimal.NewFromFloat(0.15)
	waterSavingRate       = decimal.NewFromFloat(0.30)
)

const consolidateThreshold = 5

// LocalAdvice is the canned advice used when generation is unavailable.
func LocalAdvice(summary FinancialSummary, target *models.Reminder) []models.SavingsAdvice {
	var out []models.SavingsAdvice

	if target != nil {
		switch target.Provider {
		case models.ProviderElectricity:
			out = append(out, models.SavingsAdvice{
				Title:           "💡 Optimiza consumo de electricidad",
				Description:     "Usar LED, desconectar equipos en standby y ajustar el aire acondicionado puede reducir tu consumo entre 15 y 20%.",
				PotentialSaving: estimatedSaving(target.Amount, electricitySavingRate),
			})
		case models.ProviderWater:
			out = append(out, models.SavingsAdvice{
				Title:           "💧 Reduce consumo de agua",
				Description:     "Reparar fugas, tomar duchas cortas y usar inodoros eficientes puede ahorrar hasta 30% en agua.",
				PotentialSaving: estimatedSaving(target.Amount, waterSavingRate),
			})
		}
	}

	if summary.ActiveReminders > consolidateThreshold {
		out = append(out, models.SavingsAdvice{
			Title:           "📊 Consolidar servicios",
			Description:     "Considera agrupar tus pagos en una misma fecha para controlar mejor tus gastos mensuales.",
			PotentialSaving: "Variable según proveedor",
		})
	}

	out = append(out, models.SavingsAdvice{
		Title:           "📅 Planifica tus pagos",
		Description:     "Usa el calendario para evitar pagos atrasados, cortes de servicio y recargos por mora.",
		PotentialSaving: "Previene penalizaciones",
	})
	return out
}

func estimatedSaving(amount *decimal.Decimal, rate decimal.Decimal) string {
	if amount == nil {
		return "Sin determinar"
	}
	return "$" + amount.Mul(rate).StringFixed(2)
}

// ============================================================================
// ANALYSIS
// ============================================================================

// Analyze returns a short commentary on the owner's balances and their
// variations. Without a configured generator, or when it fails, a locally
// built commentary is returned.
func (s *AdviceService) Analyze(ctx context.Context, ownerID string) (string, error) {
	summary, _, err := s.Summarize(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if len(summary.Accounts) == 0 && len(summary.Expenses) == 0 {
		return "Aún no tienes servicios guardados. Agrega una cuenta de luz o agua para recibir un análisis.", nil
	}

	if s.generator.Enabled() {
		data, _ := json.MarshalIndent(summary, "", "  ")
		prompt := "Datos del usuario:\n" + string(data) +
			"\n\nTareas:\n1. Analiza los saldos.\n2. Detecta aumentos o irregularidades.\n" +
			"3. Predice la tendencia del próximo mes.\n4. Da consejos prácticos para ahorrar."
		text, err := s.generator.Generate(ctx, analysisSystemPrompt, prompt)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), nil
		}
		if err != nil && !errors.Is(err, llm.ErrDisabled) {
			s.logger.Warn("Analysis generation failed, using local analysis", zap.Error(err))
		}
	}
	return LocalAnalysis(summary), nil
}

// LocalAnalysis describes each account's latest variation, then each
// recorded month that changed against the month before, in plain Spanish.
func LocalAnalysis(summary FinancialSummary) string {
	var b strings.Builder
	for _, a := range summary.Accounts {
		switch {
		case a.Variation == nil:
			fmt.Fprintf(&b, "%s (%s): sin comparación disponible todavía.\n", a.Provider, a.Account)
		case a.Trend == models.TrendIncrease:
			fmt.Fprintf(&b, "%s (%s): aumento de $%s respecto a la consulta anterior.\n", a.Provider, a.Account, a.Variation.Abs().StringFixed(2))
		case a.Trend == models.TrendDecrease:
			fmt.Fprintf(&b, "%s (%s): disminución de $%s respecto a la consulta anterior.\n", a.Provider, a.Account, a.Variation.Abs().StringFixed(2))
		default:
			fmt.Fprintf(&b, "%s (%s): sin cambios respecto a la consulta anterior.\n", a.Provider, a.Account)
		}
	}
	for _, e := range summary.Expenses {
		if e.Variation == nil || e.Variation.IsZero() {
			continue
		}
		word := "aumentó"
		if e.Variation.IsNegative() {
			word = "bajó"
		}
		fmt.Fprintf(&b, "%s en %s: %s $%s respecto al mes anterior.\n", e.Service, e.Period, word, e.Variation.Abs().StringFixed(2))
	}
	fmt.Fprintf(&b, "Total pendiente: $%s.", summary.TotalDue.StringFixed(2))
	if summary.OverdueCount > 0 {
		fmt.Fprintf(&b, " Tienes %d pago(s) vencido(s); prioriza liquidarlos para evitar recargos.", summary.OverdueCount)
	}
	return b.String()
}
