package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/jsonc"
)

type jsoncConfig struct {
	Daemon   *jsoncDaemon `json:"daemon"`
	Topology *string      `json:"topology"`
	RPC      *jsoncRPC    `json:"rpc"`
	HTTP     *jsoncHTTP   `json:"http"`
	Log      *jsoncLog    `json:"log"`
}

type jsoncDaemon struct {
	Address         *string `json:"address"`
	TimeoutMS       *int    `json:"timeout_ms"`
	ConnectAttempts *int    `json:"connect_attempts"`
	BackoffMS       *int    `json:"backoff_ms"`
	QueueTimeoutMS  *int    `json:"queue_timeout_ms"`
	EagerConnect    *bool   `json:"eager_connect"`
}

type jsoncRPC struct {
	Enable           *bool   `json:"enable"`
	Listen           *string `json:"listen"`
	Reflection       *bool   `json:"reflection"`
	HealthIntervalMS *int    `json:"health_interval_ms"`
}

type jsoncHTTP struct {
	Enable           *bool            `json:"enable"`
	Listen           *string          `json:"listen"`
	CORSOrigins      *jsoncStringList `json:"cors_origins"`
	StreamIntervalMS *int             `json:"stream_interval_ms"`
}

type jsoncLog struct {
	Level  *string `json:"level"`
	Stderr *bool   `json:"stderr"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	// jsonc.ToJSON keeps byte offsets, so decode errors still point at the
	// original line and column.
	normalized := string(jsonc.ToJSON([]byte(content)))

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	cfg.HTTP.CORSOrigins = append([]string(nil), base.HTTP.CORSOrigins...)
	warnings := payload.applyTo(&cfg)

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) []Warning {
	warnings := make([]Warning, 0)

	if d := payload.Daemon; d != nil {
		if d.Address != nil {
			cfg.Daemon.Address = strings.TrimSpace(*d.Address)
		}
		if d.TimeoutMS != nil {
			cfg.Daemon.TimeoutMS = *d.TimeoutMS
		}
		if d.ConnectAttempts != nil {
			cfg.Daemon.ConnectAttempts = *d.ConnectAttempts
		}
		if d.BackoffMS != nil {
			cfg.Daemon.BackoffMS = *d.BackoffMS
		}
		if d.QueueTimeoutMS != nil {
			cfg.Daemon.QueueTimeoutMS = *d.QueueTimeoutMS
		}
		if d.EagerConnect != nil {
			cfg.Daemon.EagerConnect = *d.EagerConnect
		}
	}

	if payload.Topology != nil {
		cfg.Topology = Topology(strings.ToLower(strings.TrimSpace(*payload.Topology)))
	}

	if r := payload.RPC; r != nil {
		if r.Enable != nil {
			cfg.RPC.Enable = *r.Enable
		}
		if r.Listen != nil {
			cfg.RPC.Listen = strings.TrimSpace(*r.Listen)
		}
		if r.Reflection != nil {
			cfg.RPC.Reflection = *r.Reflection
		}
		if r.HealthIntervalMS != nil {
			cfg.RPC.HealthIntervalMS = *r.HealthIntervalMS
		}
	}

	if h := payload.HTTP; h != nil {
		if h.Enable != nil {
			cfg.HTTP.Enable = *h.Enable
		}
		if h.Listen != nil {
			cfg.HTTP.Listen = strings.TrimSpace(*h.Listen)
		}
		if h.CORSOrigins != nil {
			cfg.HTTP.CORSOrigins = cfg.HTTP.CORSOrigins[:0]
			for _, origin := range *h.CORSOrigins {
				origin = strings.TrimRight(strings.TrimSpace(origin), "/")
				if origin == "" {
					warnings = append(warnings, Warning{Field: "http.cors_origins", Message: "ignoring empty origin"})
					continue
				}
				cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, origin)
			}
		}
		if h.StreamIntervalMS != nil {
			cfg.HTTP.StreamIntervalMS = *h.StreamIntervalMS
		}
	}

	if l := payload.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*l.Level))
		}
		if l.Stderr != nil {
			cfg.Log.Stderr = *l.Stderr
		}
	}

	return warnings
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
