package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/utils"
)

var reminderEmail = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <style>
      body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; }
      .container { max-width: 600px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
      .content { background: white; padding: 30px; border-radius: 8px; }
      .header { border-bottom: 3px solid #3b82f6; padding-bottom: 15px; margin-bottom: 20px; }
      .badge { display: inline-block; background: #3b82f6; color: white; padding: 5px 12px; border-radius: 20px; font-weight: bold; }
      .info { background: #eff6ff; border-left: 4px solid #3b82f6; padding: 15px; margin: 20px 0; }
      .warning { background: #fef3c7; border-left: 4px solid #f59e0b; padding: 15px; margin: 20px 0; }
      .footer { text-align: center; color: #6b7280; font-size: 12px; margin-top: 30px; }
    </style>
  </head>
  <body>
    <div class="container">
      <div class="content">
        <div class="header">
          <h1>¡Recordatorio de Pago!</h1>
          <span class="badge">{{.Service}}</span>
        </div>
        <p>Hola <strong>{{.Name}}</strong>,</p>
        {{if .Overdue}}
        <p>Tu pago venció el <strong>{{.DueDate}}</strong>:</p>
        {{else}}
        <p>Te recordamos que tu pago vence en <strong>{{.DaysRemaining}} día(s)</strong>:</p>
        {{end}}
        <div class="info">
          <p><strong>Servicio:</strong> {{.Service}}</p>
          <p><strong>Cuenta:</strong> {{.Account}}</p>
          <p><strong>Fecha de pago:</strong> {{.DueDate}}</p>
          {{with .Amount}}<p><strong>Monto estimado:</strong> ${{.}}</p>{{end}}
          {{with .Notes}}<p><strong>Notas:</strong> {{.}}</p>{{end}}
        </div>
        {{if .Overdue}}
        <div class="warning">
          <strong>⚠️ Este pago está vencido</strong>
          <p>Te recomendamos realizarlo lo antes posible para evitar recargos.</p>
        </div>
        {{end}}
        <p>Accede a tu aplicación para ver todos tus recordatorios y administrar tus pagos.</p>
        <div class="footer">
          <p>Este es un recordatorio automático de {{.AppName}}.</p>
        </div>
      </div>
    </div>
  </body>
</html>`))

type reminderEmailData struct {
	AppName       string
	Name          string
	Service       string
	Account       string
	DueDate       string
	DaysRemaining int
	Overdue       bool
	Amount        string
	Notes         string
}

// Notifier renders and sends reminder emails. Send never fails loudly: any
// problem is logged and reported as false.
type Notifier struct {
	mailer  Mailer
	appName string
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

func NewNotifier(mailer Mailer, appName string, loc *time.Location, logger *zap.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		mailer:  mailer,
		appName: appName,
		loc:     loc,
		now:     time.Now,
		logger:  logger.Named("notifier"),
	}
}

// DaysRemaining rounds the time left until the due date up to whole days.
func DaysRemaining(dueDate, now time.Time) int {
	return int(math.Ceil(dueDate.Sub(now).Hours() / 24))
}

// Send delivers the reminder email for rem to owner and reports success.
func (n *Notifier) Send(ctx context.Context, rem *models.Reminder, owner *models.User) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Notification panicked", zap.String("reminder_id", rem.ID), zap.Any("panic", r))
			ok = false
		}
	}()

	if owner == nil || owner.Email == "" {
		n.logger.Warn("Owner has no email address", zap.String("reminder_id", rem.ID))
		return false
	}

	subject, html, err := n.Render(rem, owner)
	if err != nil {
		n.logger.Error("Failed to render reminder email", zap.String("reminder_id", rem.ID), zap.Error(err))
		return false
	}

	if err := n.mailer.Send(ctx, owner.Email, subject, html); err != nil {
		n.logger.Warn("Failed to send reminder email",
			zap.String("reminder_id", rem.ID),
			utils.EmailField(owner.Email),
			zap.Error(err))
		return false
	}

	n.logger.Info("Reminder email sent", zap.String("reminder_id", rem.ID), utils.EmailField(owner.Email))
	return true
}

// Render builds the subject and HTML body for rem.
func (n *Notifier) Render(rem *models.Reminder, owner *models.User) (subject, html string, err error) {
	days := DaysRemaining(rem.DueDate, n.now())
	service := strings.ToUpper(rem.Provider.DisplayName())

	data := reminderEmailData{
		AppName:       n.appName,
		Name:          owner.Name,
		Service:       service,
		Account:       rem.AccountIdentifier,
		DueDate:       SpanishDate(rem.DueDate.In(n.loc)),
		DaysRemaining: days,
		Overdue:       days <= 0,
	}
	if data.Name == "" {
		data.Name = owner.Email
	}
	if rem.Amount != nil {
		data.Amount = rem.Amount.StringFixed(2)
	}
	if rem.Notes != nil {
		data.Notes = *rem.Notes
	}

	var buf bytes.Buffer
	if err := reminderEmail.Execute(&buf, data); err != nil {
		return "", "", err
	}
	subject = fmt.Sprintf("📢 Recordatorio de pago: %s - En %d día(s)", service, days)
	return subject, buf.String(), nil
}

var (
	spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	spanishMonths   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
		"agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// SpanishDate formats t as "lunes, 15 de noviembre de 2025".
func SpanishDate(t time.Time) string {
	return fmt.Sprintf("%s, %d de %s de %d",
		spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1], t.Year())
}
