package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/gitshopapp/dropship/internal/models"
)

type Config struct {
	Env         string `env:"ENV" envDefault:"development" validate:"oneof=development test production"`
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	SentryDSN   string `env:"SENTRY_DSN" validate:"omitempty,url"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET,required" validate:"required,min=32"`
	EncryptionKey  string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	CompanyName      string `env:"COMPANY_NAME,required" validate:"required"`
	LogoPath         string `env:"LOGO_PATH"`
	ShipFromName     string `env:"SHIP_FROM_NAME"`
	ShipFromCompany  string `env:"SHIP_FROM_COMPANY"`
	ShipFromStreet1  string `env:"SHIP_FROM_STREET1,required" validate:"required"`
	ShipFromStreet2  string `env:"SHIP_FROM_STREET2"`
	ShipFromCity     string `env:"SHIP_FROM_CITY,required" validate:"required"`
	ShipFromState    string `env:"SHIP_FROM_STATE,required" validate:"required"`
	ShipFromPostal   string `env:"SHIP_FROM_POSTAL_CODE,required" validate:"required"`
	ShipFromCountry  string `env:"SHIP_FROM_COUNTRY" envDefault:"US" validate:"required,len=2"`
	ShipFromPhone    string `env:"SHIP_FROM_PHONE"`
	POFloor          int64  `env:"PO_FLOOR" envDefault:"200001" validate:"gt=0"`
	WarehouseEmail   string `env:"WAREHOUSE_EMAIL" validate:"omitempty,email"`
	ShippedStatus    string `env:"STOREFRONT_SHIPPED_STATUS" envDefault:"shipped"`
	CarrierCatalog   string `env:"CARRIER_CATALOG_PATH"`
	ChromeExecPath   string `env:"CHROME_EXEC_PATH"`
	LabelAPIBaseURL  string `env:"LABEL_API_BASE_URL" validate:"omitempty,url"`
	LabelAPIKey      string `env:"LABEL_API_KEY"`
	DocumentTimeout  int    `env:"DOCUMENT_TIMEOUT_SECONDS" envDefault:"30" validate:"gt=0"`
	PartCacheSeconds int    `env:"PART_CACHE_SECONDS" envDefault:"3600" validate:"gte=0"`
	PartDelimiters   string `env:"PART_SKU_DELIMITERS"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"postmark" validate:"oneof=postmark mailgun resend"`
	EmailAPIKey   string `env:"EMAIL_API_KEY,required" validate:"required"`
	EmailFrom     string `env:"EMAIL_FROM,required" validate:"required"`
	EmailDomain   string `env:"EMAIL_DOMAIN" validate:"required_if=EmailProvider mailgun"`
	EmailBaseURL  string `env:"EMAIL_BASE_URL" validate:"omitempty,url"`

	StorageProvider      string `env:"STORAGE_PROVIDER" envDefault:"local" validate:"oneof=local gdrive"`
	StorageLocalRoot     string `env:"STORAGE_LOCAL_ROOT" envDefault:"./data/documents" validate:"required_if=StorageProvider local"`
	DriveFolderID        string `env:"GDRIVE_FOLDER_ID" validate:"required_if=StorageProvider gdrive"`
	DriveCredentialsFile string `env:"GDRIVE_CREDENTIALS_FILE" validate:"required_if=StorageProvider gdrive"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	IdempotencyProvider   string `env:"IDEMPOTENCY_PROVIDER" envDefault:"cache" validate:"oneof=cache dynamodb"`
	IdempotencyTable      string `env:"IDEMPOTENCY_TABLE" validate:"required_if=IdempotencyProvider dynamodb"`
	IdempotencyTTLMinutes int    `env:"IDEMPOTENCY_TTL_MINUTES" envDefault:"1440" validate:"gt=0"`

	StorefrontProvider      string `env:"STOREFRONT_PROVIDER" envDefault:"none" validate:"oneof=none github"`
	GitHubAppID             string `env:"GITHUB_APP_ID" validate:"required_if=StorefrontProvider github"`
	GitHubPrivateKeyBase64  string `env:"GITHUB_PRIVATE_KEY_BASE64" validate:"required_if=StorefrontProvider github"`
	GitHubInstallationID    int64  `env:"GITHUB_INSTALLATION_ID" validate:"required_if=StorefrontProvider github"`
	StorefrontRetryQueueURL string `env:"STOREFRONT_RETRY_QUEUE_URL" validate:"omitempty,url"`
	AWSRegion               string `env:"AWS_REGION" envDefault:"us-east-1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads .env outside production. Variables already set in the
// environment win.
func loadDotEnv() error {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("ENV")), "production") {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if strings.TrimSpace(c.ShipFromName) == "" && strings.TrimSpace(c.ShipFromCompany) == "" {
		return fmt.Errorf("SHIP_FROM_NAME or SHIP_FROM_COMPANY must be set")
	}

	hasLabelURL := strings.TrimSpace(c.LabelAPIBaseURL) != ""
	hasLabelKey := strings.TrimSpace(c.LabelAPIKey) != ""
	if hasLabelURL && !hasLabelKey {
		return fmt.Errorf("LABEL_API_KEY is required when LABEL_API_BASE_URL is set")
	}

	if c.Env == "production" && c.StorageProvider == "local" && strings.HasPrefix(strings.TrimSpace(c.StorageLocalRoot), "./") {
		return fmt.Errorf("STORAGE_LOCAL_ROOT must be an absolute path in production")
	}

	return nil
}

// ShipFrom is the internal warehouse address.
func (c *Config) ShipFrom() models.Address {
	return models.Address{
		Name:       strings.TrimSpace(c.ShipFromName),
		Company:    strings.TrimSpace(c.ShipFromCompany),
		Street1:    strings.TrimSpace(c.ShipFromStreet1),
		Street2:    strings.TrimSpace(c.ShipFromStreet2),
		City:       strings.TrimSpace(c.ShipFromCity),
		State:      strings.TrimSpace(c.ShipFromState),
		PostalCode: strings.TrimSpace(c.ShipFromPostal),
		Country:    strings.ToUpper(strings.TrimSpace(c.ShipFromCountry)),
		Phone:      strings.TrimSpace(c.ShipFromPhone),
	}
}
