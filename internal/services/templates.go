package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Email bodies are deliberately plain: a heading, the facts, a footer.

func emailShell(title, body string) string {
	return fmt.Sprintf(`<div style="font-family:Georgia,serif;max-width:600px;margin:0 auto">
<h2>%s</h2>
%s
<p style="color:#888;font-size:12px">Concierge Bank &middot; This is an automated message.</p>
</div>`, title, body)
}

func welcomeEmail(fullName string) string {
	if fullName == "" {
		fullName = "Valued Client"
	}
	return emailShell("Welcome to Concierge Bank",
		fmt.Sprintf("<p>Dear %s,</p><p>Your account is ready. Sign in to fund your new Checking account.</p>", fullName))
}

func transferConfirmationEmail(amount, newBalance decimal.Decimal) string {
	return emailShell("Transfer Confirmation",
		fmt.Sprintf("<p>Your transfer of $%s has been processed.</p><p>New balance: $%s</p>",
			amount.StringFixed(2), newBalance.StringFixed(2)))
}

func billPaymentEmail(payeeName string, amount, newBalance decimal.Decimal) string {
	return emailShell("Bill Payment Confirmation",
		fmt.Sprintf("<p>Your payment of $%s to %s has been processed.</p><p>New balance: $%s</p>",
			amount.StringFixed(2), payeeName, newBalance.StringFixed(2)))
}

func checkDepositEmail(amount decimal.Decimal) string {
	return emailShell("Check Deposit Confirmation",
		fmt.Sprintf("<p>Your check deposit of $%s has been received and is clearing.</p>",
			amount.StringFixed(2)))
}

func twofaCodeEmail(fullName, otp string) string {
	if fullName == "" {
		fullName = "Valued Client"
	}
	return emailShell("Login Verification Code",
		fmt.Sprintf("<p>Dear %s,</p><p>Your verification code is:</p><p style=\"font-size:28px;letter-spacing:6px\"><strong>%s</strong></p><p>It expires in 10 minutes.</p>", fullName, otp))
}

func twofaSetupEmail(fullName string, backupCodes []string) string {
	if fullName == "" {
		fullName = "Valued Client"
	}
	items := make([]string, len(backupCodes))
	for i, code := range backupCodes {
		items[i] = fmt.Sprintf("<li><code>%s</code></li>", code)
	}
	return emailShell("Two-Factor Authentication Enabled",
		fmt.Sprintf("<p>Dear %s,</p><p>2FA is now active on your account. Store these one-time backup codes; they will not be shown again:</p><ul>%s</ul>",
			fullName, strings.Join(items, "")))
}

func adminMessageEmail(title, message string) string {
	return emailShell(title,
		fmt.Sprintf("<p>%s</p><p style=\"color:#666;font-size:14px\">This is an administrative notification from Concierge Bank.</p>", message))
}

func cardIssuedEmail(lastFour string) string {
	return emailShell("Your New Card",
		fmt.Sprintf("<p>A new card ending in %s has been issued on your account. If you did not request it, contact us immediately.</p>", lastFour))
}
