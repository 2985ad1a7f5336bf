package services

import (
	"net/url"
	"strings"
)

// Replies holds the texts sent back to visitors during the exchange.
type Replies struct {
	GroupLink string
}

func (Replies) AskName() string {
	return "👋 Olá! Para finalizar sua inscrição:\n" +
		"➡️ *Envie seu NOME COMPLETO* nesta conversa.\n\n" +
		"Ex.: *Ana Paula de Souza*\n\n" +
		"Assim que recebermos, confirmamos sua vaga ✅"
}

func (r Replies) Confirmation(name, code string) string {
	if code == "" {
		code = "-"
	}
	return "✅ *Inscrição confirmada!*\n" +
		"Nome: *" + name + "*\n" +
		"Código: *" + code + "*\n\n" +
		"Clique no link abaixo para entrar no *Grupo VIP do evento*:\n" +
		"📎 " + r.GroupLink
}

func (Replies) Help() string {
	return "Não consegui identificar seu código.\n\n" +
		"Por favor, envie a mensagem inicial ou digite seu código no formato:\n" +
		"*Quero participar do evento, meu código é #SEUCODIGO*"
}

// RenderClickMessage fills {code} or #{code} with "#CODE" and appends the
// correlation token. Templates without a placeholder get the code appended.
func RenderClickMessage(template, code, token string) string {
	msg := strings.ReplaceAll(template, "#{code}", "#"+code)
	msg = strings.ReplaceAll(msg, "{code}", "#"+code)
	if !strings.Contains(template, "{code}") {
		msg += " #" + code
	}
	return msg + "  (TID:" + token + ")"
}

// ComposeURL builds the chat deep link with the message pre-filled.
func ComposeURL(base, phone, text string) string {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("text", text)

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// SanitizePhone keeps digits only; valid numbers have 10 to 15 of them.
func SanitizePhone(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if len(digits) < 10 || len(digits) > 15 {
		return ""
	}
	return digits
}

// ResolvePhone prefers the per-link phone and falls back to the configured one.
func ResolvePhone(queryPhone, fallback string) string {
	if p := SanitizePhone(queryPhone); p != "" {
		return p
	}
	return SanitizePhone(fallback)
}

// CapName trims the visitor's name and bounds it to max runes.
func CapName(name string, max int) string {
	name = strings.TrimSpace(name)
	if max > 0 {
		if runes := []rune(name); len(runes) > max {
			name = strings.TrimSpace(string(runes[:max]))
		}
	}
	return name
}
