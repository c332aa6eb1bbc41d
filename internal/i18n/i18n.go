// Package i18n resolves the symbolic message keys produced by the contact
// pipeline into English or Spanish text.
package i18n

import (
	"strings"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Keys used outside the contact package.
const (
	KeyNotifySubject = "notify.contact.subject"
	KeyNotifyIntro   = "notify.contact.intro"
)

var (
	English = language.English
	Spanish = language.Spanish

	// Supported lists catalog languages; the first entry is the fallback.
	Supported = []language.Tag{English, Spanish}

	matcher = language.NewMatcher(Supported)
	cat     = buildCatalog()
)

type entry struct {
	key string
	en  any
	es  any
}

var entries = []entry{
	{"contact.form.success", "Thank you! Your message has been sent. We will contact you soon.", "¡Gracias! Su mensaje ha sido enviado. Nos pondremos en contacto pronto."},
	{"contact.form.spamError", "Your submission could not be processed.", "No se pudo procesar su envío."},
	{"contact.form.rateLimitError",
		plural.Selectf(1, "%d",
			"=1", "Too many attempts. Please wait %d second before trying again.",
			"other", "Too many attempts. Please wait %d seconds before trying again."),
		plural.Selectf(1, "%d",
			"=1", "Demasiados intentos. Espere %d segundo antes de intentarlo de nuevo.",
			"other", "Demasiados intentos. Espere %d segundos antes de intentarlo de nuevo."),
	},
	{"contact.form.validationError", "Please correct the highlighted fields.", "Corrija los campos marcados."},
	{"contact.form.submitError", "Something went wrong sending your message. Please try again or call us.", "Ocurrió un error al enviar su mensaje. Inténtelo de nuevo o llámenos."},

	{"validation.nameError", "Please enter your full name (letters only).", "Ingrese su nombre completo (solo letras)."},
	{"validation.emailError", "Please enter a valid email address.", "Ingrese un correo electrónico válido."},
	{"validation.phoneError", "Please enter a valid 10-digit phone number.", "Ingrese un número de teléfono válido de 10 dígitos."},
	{"validation.serviceError", "Please select a service.", "Seleccione un servicio."},
	{"validation.messageError", "Please tell us a little more about your project (at least 10 characters).", "Cuéntenos un poco más sobre su proyecto (al menos 10 caracteres)."},

	{KeyNotifySubject, "New quote request from %s (%s)", "Nueva solicitud de cotización de %s (%s)"},
	{KeyNotifyIntro, "A new contact form submission was received.", "Se recibió un nuevo mensaje del formulario de contacto."},
}

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(English))
	for _, e := range entries {
		set(b, English, e.key, e.en)
		set(b, Spanish, e.key, e.es)
	}
	return b
}

func set(b *catalog.Builder, tag language.Tag, key string, msg any) {
	var err error
	switch m := msg.(type) {
	case string:
		err = b.SetString(tag, key, m)
	case catalog.Message:
		err = b.Set(tag, key, m)
	}
	if err != nil {
		panic("i18n: " + key + ": " + err.Error())
	}
}

// Match picks the best supported language for an Accept-Language header or
// a bare tag such as "es-MX". Unknown input falls back to English.
func Match(accept string) language.Tag {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return English
	}
	prefs, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(prefs) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return English
	}
	return Supported[idx]
}

// Printer formats catalog messages for one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

func NewPrinter(tag language.Tag) *Printer {
	return &Printer{tag: tag, p: message.NewPrinter(tag, message.Catalog(cat))}
}

// For returns a printer for the best match of accept.
func For(accept string) *Printer {
	return NewPrinter(Match(accept))
}

func (p *Printer) Tag() language.Tag {
	return p.tag
}

// T resolves key. Unknown keys are returned verbatim.
func (p *Printer) T(key string, args ...any) string {
	return p.p.Sprintf(message.Key(key, key), args...)
}

// Translate is a one-shot T for the best match of accept.
func Translate(accept, key string, args ...any) string {
	return For(accept).T(key, args...)
}
