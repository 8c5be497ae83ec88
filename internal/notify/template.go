package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"whale-watch/internal/bus"
)

// approxUSD renders a short human amount: 950, 150K, 2.3M, 1.1B.
func approxUSD(v float64) string {
	var s string
	switch {
	case v >= 1e9:
		s = fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		s = fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		s = fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
	return strings.NewReplacer(".0B", "B", ".0M", "M", ".0K", "K").Replace(s)
}

// FormatWhaleAlertSubject formats the email subject for a whale alert.
func FormatWhaleAlertSubject(event bus.AlertEvent) string {
	return fmt.Sprintf("🐋 Whale Alert: $%s %s deposit on chain %s", approxUSD(event.ValueUSD), event.TokenSymbol, event.ChainID)
}

// FormatWhaleAlertMessage formats the plain text body for a whale alert.
func FormatWhaleAlertMessage(event bus.AlertEvent) string {
	return fmt.Sprintf(`Whale Deposit Detected!

Chain: %s
Token: %s
Amount: %g %s
Value: $%.2f
From: %s
Bridge: %s
Transaction: %s
Block: %d
Timestamp: %s

This is an automated alert from your whale monitoring system.
`, event.ChainID, event.TokenSymbol, event.Amount, event.TokenSymbol, event.ValueUSD,
		event.From, event.To, event.TxHash, event.BlockNumber,
		event.Timestamp.Format(time.RFC3339))
}

// FormatWhaleAlertHTML formats the HTML email body for a whale alert.
func FormatWhaleAlertHTML(event bus.AlertEvent) string {
	htmlTemplate := `
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Whale Alert</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #0ea5e9 0%, #1e40af 100%); padding: 30px; border-radius: 10px 10px 0 0; text-align: center;">
		<h1 style="color: white; margin: 0; font-size: 28px;">🐋 Whale Alert</h1>
	</div>

	<div style="background: #f9fafb; padding: 30px; border-radius: 0 0 10px 10px; border: 1px solid #e5e7eb;">
		<div style="background: white; padding: 25px; border-radius: 8px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1);">
			<h2 style="margin-top: 0; color: #1f2937; font-size: 24px;">Large {{.TokenSymbol}} Deposit</h2>

			<div style="display: flex; align-items: center; margin: 20px 0;">
				<span style="font-size: 48px; margin-right: 15px;">💰</span>
				<div>
					<div style="font-size: 14px; color: #6b7280; text-transform: uppercase; letter-spacing: 1px;">Deposit Value</div>
					<div style="font-size: 32px; font-weight: bold; color: #10b981;">${{.ValueUSD}}</div>
				</div>
			</div>

			<div style="border-top: 1px solid #e5e7eb; padding-top: 20px; margin-top: 20px;">
				<table style="width: 100%; border-collapse: collapse;">
					<tr>
						<td style="padding: 10px 0; color: #6b7280; font-weight: 500;">Chain:</td>
						<td style="padding: 10px 0; text-align: right; font-weight: 600;">{{.ChainID}}</td>
					</tr>
					<tr>
						<td style="padding: 10px 0; color: #6b7280; font-weight: 500;">Amount:</td>
						<td style="padding: 10px 0; text-align: right; font-weight: 600;">{{.Amount}} {{.TokenSymbol}}</td>
					</tr>
					<tr>
						<td style="padding: 10px 0; color: #6b7280; font-weight: 500;">From:</td>
						<td style="padding: 10px 0; text-align: right; font-weight: 600; font-family: monospace;">{{.From}}</td>
					</tr>
					<tr>
						<td style="padding: 10px 0; color: #6b7280; font-weight: 500;">Bridge:</td>
						<td style="padding: 10px 0; text-align: right; font-weight: 600; font-family: monospace;">{{.To}}</td>
					</tr>
					<tr>
						<td style="padding: 10px 0; color: #6b7280; font-weight: 500;">Transaction:</td>
						<td style="padding: 10px 0; text-align: right; font-weight: 600; font-family: monospace;">{{.TxHash}}</td>
					</tr>
					<tr>
						<td style="padding: 10px 0; color: #6b7280; font-weight: 500;">Block:</td>
						<td style="padding: 10px 0; text-align: right; font-weight: 600;">{{.BlockNumber}}</td>
					</tr>
					<tr>
						<td style="padding: 10px 0; color: #6b7280; font-weight: 500;">Timestamp:</td>
						<td style="padding: 10px 0; text-align: right; font-weight: 600;">{{.Timestamp}}</td>
					</tr>
				</table>
			</div>
		</div>

		<div style="text-align: center; color: #6b7280; font-size: 12px; margin-top: 20px;">
			<p style="margin: 0;">This is an automated alert from your whale monitoring system.</p>
			<p style="margin: 5px 0 0 0;">Powered by Blockscout</p>
		</div>
	</div>
</body>
</html>
`

	data := struct {
		ChainID     string
		TokenSymbol string
		Amount      string
		ValueUSD    string
		From        string
		To          string
		TxHash      string
		BlockNumber uint64
		Timestamp   string
	}{
		ChainID:     event.ChainID,
		TokenSymbol: event.TokenSymbol,
		Amount:      fmt.Sprintf("%g", event.Amount),
		ValueUSD:    fmt.Sprintf("%.2f", event.ValueUSD),
		From:        event.From,
		To:          event.To,
		TxHash:      event.TxHash,
		BlockNumber: event.BlockNumber,
		Timestamp:   event.Timestamp.Format(time.RFC3339),
	}

	tmpl, err := template.New("email").Parse(htmlTemplate)
	if err != nil {
		return fallbackWhaleHTML(event)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return fallbackWhaleHTML(event)
	}
	return buf.String()
}

// fallbackWhaleHTML is the simple HTML body used when template rendering
// fails.
func fallbackWhaleHTML(event bus.AlertEvent) string {
	return fmt.Sprintf(`
	<html>
	<body>
		<h1>🐋 Whale Alert</h1>
		<h2>Large %s Deposit</h2>
		<p><strong>Value:</strong> $%.2f</p>
		<p><strong>Amount:</strong> %g %s</p>
		<p><strong>From:</strong> %s</p>
		<p><strong>Bridge:</strong> %s</p>
		<p><strong>Transaction:</strong> %s</p>
		<p><strong>Timestamp:</strong> %s</p>
	</body>
	</html>
	`, event.TokenSymbol, event.ValueUSD, event.Amount, event.TokenSymbol,
		event.From, event.To, event.TxHash, event.Timestamp.Format(time.RFC3339))
}

// FormatWhaleAlertEmail formats subject and both bodies for a whale alert.
func FormatWhaleAlertEmail(event bus.AlertEvent) (subject, textBody, htmlBody string) {
	return FormatWhaleAlertSubject(event), FormatWhaleAlertMessage(event), FormatWhaleAlertHTML(event)
}
