package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamo"
	BackendFile     = "file"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	StoreBackend string
	DatabaseURL  string
	DBMaxConns   int
	DataDir      string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	SNSRegion      string
	SNSTopicARN    string // staff alerts; empty disables publishing

	RedisURL          string // empty falls back to the in-process issuance limiter
	IssueMaxPerWindow int    // 0 disables issuance limiting
	IssueWindow       time.Duration

	CodeLength     int
	CodeExpiry     time.Duration
	InitialCredits int

	ProfileTimeout    time.Duration
	RobloxUsersBase   string
	RobloxThumbsBase  string
	RobloxGamesBase   string
	RobloxCatalogBase string
	RobloxGroupsBase  string
	RobloxWebBase     string

	Discord Discord

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration
	AllowedOrigins    []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Verifications string
	Submissions   string
}

// Discord holds bot tokens and the guild layout the bots operate on.
type Discord struct {
	VerifyToken    string
	InfoToken      string
	AdvertiseToken string
	Prefix         string
	GuildID        string

	VerifyChannel       string
	AdCommandsChannel   string
	StaffCommandChannel string
	VerificationLog     string
	AdminLog            string
	AdministrationLog   string
	AdRequestsChannel   string
	ApprovedAdsChannel  string
	AdLogChannel        string

	VerifiedRole  string
	StaffRole     string
	PurgeInterval time.Duration
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("PORT", "10000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		StoreBackend: getEnv("STORE_BACKEND", BackendFile),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 10),
		DataDir:      getEnv("DATA_DIR", "./data"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Verifications: getEnv("DYNAMO_TABLE_VERIFICATIONS", "verifications"),
			Submissions:   getEnv("DYNAMO_TABLE_SUBMISSIONS", "ad_submissions"),
		},
		SNSRegion:   getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN: getEnv("SNS_TOPIC_ARN", ""),

		RedisURL:          getEnv("REDIS_URL", ""),
		IssueMaxPerWindow: getEnvInt("ISSUE_MAX_PER_WINDOW", 0),
		IssueWindow:       getEnvDuration("ISSUE_WINDOW", 10*time.Minute),

		CodeLength:     getEnvInt("CODE_LENGTH", 4),
		CodeExpiry:     getEnvDuration("CODE_EXPIRY", 10*time.Minute),
		InitialCredits: getEnvInt("INITIAL_CREDITS", 5),

		ProfileTimeout:    getEnvDuration("PROFILE_TIMEOUT", 10*time.Second),
		RobloxUsersBase:   getEnv("ROBLOX_USERS_BASE", "https://users.roblox.com"),
		RobloxThumbsBase:  getEnv("ROBLOX_THUMBNAILS_BASE", "https://thumbnails.roblox.com"),
		RobloxGamesBase:   getEnv("ROBLOX_GAMES_BASE", "https://games.roblox.com"),
		RobloxCatalogBase: getEnv("ROBLOX_CATALOG_BASE", "https://catalog.roblox.com"),
		RobloxGroupsBase:  getEnv("ROBLOX_GROUPS_BASE", "https://groups.roblox.com"),
		RobloxWebBase:     getEnv("ROBLOX_WEB_BASE", "https://www.roblox.com"),

		Discord: Discord{
			VerifyToken:    getEnv("DISCORD_VERIFY_TOKEN", ""),
			InfoToken:      getEnv("DISCORD_INFO_TOKEN", ""),
			AdvertiseToken: getEnv("DISCORD_ADVERTISE_TOKEN", ""),
			Prefix:         getEnv("DISCORD_PREFIX", "!"),
			GuildID:        getEnv("DISCORD_GUILD_ID", ""),

			VerifyChannel:       getEnv("DISCORD_VERIFY_CHANNEL", "verify"),
			AdCommandsChannel:   getEnv("DISCORD_AD_COMMANDS_CHANNEL", "advertisement-commands"),
			StaffCommandChannel: getEnv("DISCORD_STAFF_COMMANDS_CHANNEL", "commands"),
			VerificationLog:     getEnv("DISCORD_VERIFICATION_LOG_CHANNEL", "verification-logs"),
			AdminLog:            getEnv("DISCORD_ADMIN_LOG_CHANNEL", "admin-logs"),
			AdministrationLog:   getEnv("DISCORD_ADMINISTRATION_LOG_CHANNEL", "administration-logs"),
			AdRequestsChannel:   getEnv("DISCORD_AD_REQUESTS_CHANNEL", "advertisement-requests"),
			ApprovedAdsChannel:  getEnv("DISCORD_APPROVED_ADS_CHANNEL", "approved-ads"),
			AdLogChannel:        getEnv("DISCORD_AD_LOG_CHANNEL", "advertisement-logs"),

			VerifiedRole:  getEnv("DISCORD_VERIFIED_ROLE", "Verified"),
			StaffRole:     getEnv("DISCORD_STAFF_ROLE", "Blox Entertainment Staff"),
			PurgeInterval: getEnvDuration("PURGE_INTERVAL", time.Minute),
		},

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "10m"); bare integers are seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
