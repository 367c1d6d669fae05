package email

// Config configures outbound email. Without PostmarkServerToken the service
// falls back to LogSender.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@oficinapro.com.br"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"suporte@oficinapro.com.br"`
}
