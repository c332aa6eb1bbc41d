package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/contact"
	"github.com/padillasconcrete/siteapi/internal/i18n"
	"github.com/padillasconcrete/siteapi/internal/observability"
	"github.com/padillasconcrete/siteapi/internal/output"
)

var (
	contactName     string
	contactEmail    string
	contactPhone    string
	contactService  string
	contactMessage  string
	contactHoneypot string
	contactEndpoint string
	contactLanguage string
	contactTimeout  time.Duration

	messagesLimit int
)

// errContactNotDelivered signals a non-success outcome after it has been
// printed.
var errContactNotDelivered = errors.New("contact request was not delivered")

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Submit and review contact requests",
}

var contactSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a contact request to a running server",
	Long: `Run one contact form submission through the full client pipeline:
honeypot check, local rate limit, sanitization, validation and delivery to
the server's /api/contact endpoint.

Local attempts are recorded in the configured database, so repeated runs
are limited the same way a browser session is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, cfg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		limiter, closer, err := newRateLimiter(ctx, cfg, db)
		if err != nil {
			return err
		}
		defer closer.Close() // nolint:errcheck // best-effort cleanup

		endpoint := strings.TrimSpace(contactEndpoint)
		if endpoint == "" {
			endpoint = cfg.Contact.Endpoint
		}
		language := strings.TrimSpace(contactLanguage)
		if language == "" {
			language = cfg.Contact.DefaultLanguage
		}

		submitter := &contact.HTTPSubmitter{
			Client:   &http.Client{Timeout: contactTimeout},
			Endpoint: endpoint,
			Honeypot: contactHoneypot,
		}
		orchestrator := contact.NewOrchestrator(limiter, submitter,
			contact.WithConfirmationDelay(0),
			contact.WithLogger(observability.CLILogger),
			contact.WithMetadata(contact.ClientMetadata{
				UserAgent: fmt.Sprintf("%s/%s", GetAppIdentity().BinaryName, versionInfo.Version),
				Language:  language,
			}),
		)
		orchestrator.SetForm(contact.FormState{
			Name:     contactName,
			Email:    contactEmail,
			Phone:    contactPhone,
			Service:  contactService,
			Message:  contactMessage,
			Honeypot: contactHoneypot,
		})

		outcome, err := orchestrator.Submit(ctx)
		if err != nil {
			return err
		}

		printContactOutcome(i18n.For(language), outcome)
		if !outcome.OK() {
			if outcome.Err != nil {
				observability.CLILogger.Debug("Contact delivery failed", zap.Error(outcome.Err))
			}
			return errContactNotDelivered
		}
		return nil
	},
}

func printContactOutcome(p *i18n.Printer, outcome contact.Outcome) {
	switch outcome.Kind {
	case contact.OutcomeSuccess:
		fmt.Fprintln(os.Stdout, p.T(outcome.MessageKey))
	case contact.OutcomeRateLimitExceeded:
		fmt.Fprintln(os.Stderr, p.T(outcome.MessageKey, outcome.RemainingSeconds))
	case contact.OutcomeValidationFailure:
		fmt.Fprintln(os.Stderr, p.T(outcome.MessageKey))
		fields := make([]string, 0, len(outcome.Errors))
		for field := range outcome.Errors {
			fields = append(fields, string(field))
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", field, p.T(string(outcome.Errors[contact.Field(field)])))
		}
	default:
		fmt.Fprintln(os.Stderr, p.T(outcome.MessageKey))
	}
}

var contactMessagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Review stored contact messages",
}

var contactMessagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored contact messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		messages, err := db.ListContactMessages(cmd.Context(), messagesLimit)
		if err != nil {
			return err
		}

		return writeListing(cmd, "contact.messages", func(f output.Formatter) (string, error) {
			return f.FormatMessages(messages)
		})
	},
}

func init() {
	f := contactSubmitCmd.Flags()
	f.StringVar(&contactName, "name", "", "Full name")
	f.StringVar(&contactEmail, "email", "", "Email address")
	f.StringVar(&contactPhone, "phone", "", "10-digit phone number")
	f.StringVar(&contactService, "service", "", "Service: "+strings.Join(contact.Services, ", "))
	f.StringVar(&contactMessage, "message", "", "Project details")
	f.StringVar(&contactHoneypot, "honeypot", "", "Hidden field value (testing spam rejection)")
	f.StringVar(&contactEndpoint, "endpoint", "", "Contact endpoint URL (default contact.endpoint)")
	f.StringVar(&contactLanguage, "language", "", "Language tag for messages, e.g. en or es (default contact.default_language)")
	f.DurationVar(&contactTimeout, "timeout", 15*time.Second, "HTTP timeout")

	contactMessagesListCmd.Flags().IntVar(&messagesLimit, "limit", 50, "Maximum messages to list (0 for all)")
	addOutputFlags(contactMessagesListCmd, "table|json|markdown")

	contactMessagesCmd.AddCommand(contactMessagesListCmd)
	contactCmd.AddCommand(contactSubmitCmd)
	contactCmd.AddCommand(contactMessagesCmd)
	rootCmd.AddCommand(contactCmd)
}
