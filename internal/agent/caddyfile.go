package agent

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

var errUnsafeValue = errors.New("value cannot be embedded in the proxy configuration")

var caddyfileTemplate = template.Must(template.New("Caddyfile").Funcs(template.FuncMap{
	"quote": caddyQuote,
}).Parse(`# Managed by natsume-client. Local edits are overwritten on the next sync.
{{ .Listen }} {
	handle {{ .LoginPath }} {
		reverse_proxy {{ .Upstream }} {
			header_up username {{ quote .Username }}
			header_up password {{ quote .Password }}
		}
	}

	handle {
		reverse_proxy {{ .Upstream }}
	}
}
`))

type proxyConfig struct {
	Listen    string
	LoginPath string
	Upstream  string
	Username  string
	Password  string
}

func caddyQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func renderProxyConfig(cfg proxyConfig) ([]byte, error) {
	for name, v := range map[string]string{"username": cfg.Username, "password": cfg.Password} {
		if strings.ContainsAny(v, "\r\n{}") {
			return nil, fmt.Errorf("%w: %s contains a newline or brace", errUnsafeValue, name)
		}
	}
	for name, v := range map[string]string{"listen": cfg.Listen, "login path": cfg.LoginPath, "upstream": cfg.Upstream} {
		if v == "" || strings.ContainsAny(v, " \t\r\n{}\"") {
			return nil, fmt.Errorf("%w: %s %q", errUnsafeValue, name, v)
		}
	}

	var buf bytes.Buffer
	if err := caddyfileTemplate.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to render proxy configuration: %w", err)
	}
	return buf.Bytes(), nil
}
