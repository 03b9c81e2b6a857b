package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"itsdumper/lib/configutil"
	"itsdumper/lib/restyutil"
	"itsdumper/lib/scrapers/itslearning/core"
	"itsdumper/lib/serviceutil"

	"github.com/joho/godotenv"
)

type Config struct {
	School    string `json:"school"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SessionId string `json:"session_id"`

	Out          string `json:"out"`
	SkipExisting bool   `json:"skip_existing"`
	Concurrency  int    `json:"concurrency"`
}

// readConfig layers config.json5 (plus its .local override) under the
// ITSLEARNING_* environment variables, so credentials can stay out of
// checked-in config files.
func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}

	// a missing .env is fine, the variables may come from the shell
	_ = godotenv.Load()

	if v := os.Getenv("ITSLEARNING_SCHOOL"); v != "" {
		cfg.School = v
	}
	if v := os.Getenv("ITSLEARNING_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("ITSLEARNING_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("ITSLEARNING_SESSION_ID"); v != "" {
		cfg.SessionId = v
	}
	return cfg
}

func createClient(ctx context.Context, cfg Config) *core.Client {
	if cfg.School == "" {
		serviceutil.Fatal("no school configured", errors.New("set school in config.json5 or ITSLEARNING_SCHOOL"))
	}

	loginCtx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	// registered before the client constructs so its resty middleware
	// picks the output up
	core.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/itsdumper"))
	client, err := core.NewClient(loginCtx, core.ClientOptions{
		School: cfg.School,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize itslearning client", err)
	}

	if cfg.SessionId != "" {
		slog.InfoContext(ctx, "reusing existing session", "school", cfg.School)
		client.LoginWithSessionId(cfg.SessionId)
		return client
	}

	slog.InfoContext(ctx, "logging in", "school", cfg.School, "username", cfg.Username)
	err = client.Login(loginCtx, cfg.Username, cfg.Password)
	if err != nil {
		serviceutil.Fatal("failed to login to itslearning", err)
	}
	return client
}
