package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets that are generated on first start (the
// action token key) are resolved separately by LoadActionSecret.
type Config struct {
	Env               string   // application environment (e.g. "dev", "prod")
	Port              string   // HTTP port to listen on
	BaseURL           string   // public origin used when building emailed links
	DBUser            string   // database username
	DBPass            string   // database password (optional)
	DBHost            string   // database host address
	DBPort            string   // database port number
	DBName            string   // database name
	JWTSecret         string   // secret used to sign admin sessions and file tokens
	AccessTTLMin      int      // admin access token time-to-live in minutes
	FileTokenTTLMin   int      // file-serving token time-to-live in minutes
	AdminEmail        string   // login of the single administrator
	AdminPasswordHash string   // bcrypt hash of the administrator password
	AdminNotifyEmails []string // recipients of new-request notifications
	AutoResponse      bool     // send an acknowledgement to requesters on submission
	StorageDir        string   // root directory holding document files
	ActionSecret      string   // HMAC key for action links; empty means use ActionSecretFile
	ActionSecretFile  string   // where the generated HMAC key is persisted
}

// Load reads configuration values from the environment (after merging an
// optional .env file) and returns a Config.  Required variables are enforced
// by must() and missing values cause the program to exit with a fatal log
// message.
func Load() Config {
	// .env is a convenience for local runs; real deployments set the environment.
	_ = godotenv.Load()

	adminEmail := strings.ToLower(strings.TrimSpace(must("ADMIN_EMAIL")))
	return Config{
		Env:               must("APP_ENV"),
		Port:              must("APP_PORT"),
		BaseURL:           strings.TrimRight(must("APP_BASE_URL"), "/"),
		DBUser:            must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"),
		DBHost:            must("DB_HOST"),
		DBPort:            must("DB_PORT"),
		DBName:            must("DB_NAME"),
		JWTSecret:         must("JWT_SECRET"),
		AccessTTLMin:      mustInt("ACCESS_TOKEN_TTL_MIN"),
		FileTokenTTLMin:   envInt("FILE_TOKEN_TTL_MIN", 30),
		AdminEmail:        adminEmail,
		AdminPasswordHash: must("ADMIN_PASSWORD_HASH"),
		AdminNotifyEmails: splitList(envStr("ADMIN_NOTIFY_EMAILS", adminEmail)),
		AutoResponse:      envBool("AUTO_RESPONSE_ENABLED", true),
		StorageDir:        envStr("STORAGE_DIR", "storage"),
		ActionSecret:      os.Getenv("ACTION_TOKEN_SECRET"),
		ActionSecretFile:  envStr("ACTION_SECRET_FILE", "data/action_secret.key"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
