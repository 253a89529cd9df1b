package transport

import (
	"net/url"
	"strings"

	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
)

// ConnectionStringFormat is the only accepted connection string shape.
const ConnectionStringFormat = "<baseUrl>;<bearerToken>"

// Config is a parsed connection string.
type Config struct {
	BaseURL string
	Token   string
}

// String renders the config back into connection string form.
func (c Config) String() string {
	return c.BaseURL + ";" + c.Token
}

// ParseConnectionString splits cs into its base URL and bearer token. Both
// segments must be present and the URL must be absolute http or https.
func ParseConnectionString(cs string) (Config, error) {
	parts := strings.Split(cs, ";")
	if len(parts) != 2 {
		return Config{}, dberr.Newf(dberr.KindConfiguration, "connection string must have the form %q", ConnectionStringFormat)
	}

	base := strings.TrimSpace(parts[0])
	token := strings.TrimSpace(parts[1])
	if base == "" || token == "" {
		return Config{}, dberr.Newf(dberr.KindConfiguration, "connection string must have the form %q with both segments set", ConnectionStringFormat)
	}

	u, err := url.Parse(base)
	if err != nil {
		return Config{}, dberr.Wrap(dberr.KindConfiguration, "invalid base URL in connection string", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, dberr.Newf(dberr.KindConfiguration, "base URL %q must be an absolute http or https URL", base)
	}

	return Config{BaseURL: base, Token: token}, nil
}

// ReadOnly returns cs with a mode=ro query flag added to its base URL.
func ReadOnly(cs string) (string, error) {
	cfg, err := ParseConnectionString(cs)
	if err != nil {
		return "", err
	}

	u, _ := url.Parse(cfg.BaseURL)
	q := u.Query()
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()
	cfg.BaseURL = u.String()

	return cfg.String(), nil
}
