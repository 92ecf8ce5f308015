package bot

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, b *Bot) {
	// Method is checked by the handler so wrong verbs get the JSON 405.
	r.HandleFunc("/webhook/zapi", b.HandleWebhook)
	r.Post("/admin/customers/{customerID}/thread/reset", b.HandleResetThread)
}
