package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser evaluates Lua config files with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector skips the platform table.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// ParseFile reads a Lua config from path and applies it over base.
// A missing file is not an error: base is returned after validation.
func (p *Parser) ParseFile(ctx context.Context, path string, base Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := base
		if err := cfg.Validate(); err != nil {
			return nil, &ParseError{Message: "config validation failed", Detail: err.Error()}
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return p.ParseString(ctx, string(data), base)
}

// ParseString evaluates luaCode and applies the global "fetchrun" table over
// base. Keys absent from the table keep their base values.
func (p *Parser) ParseString(ctx context.Context, luaCode string, base Config) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	cfg := base
	if err := applyTable(L, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return &cfg, nil
}

// applyTable copies the fields of the global "fetchrun" table into cfg.
func applyTable(L *lua.LState, cfg *Config) error {
	global := L.GetGlobal("fetchrun")
	table, ok := global.(*lua.LTable)
	if !ok {
		return &ParseError{
			Message: "missing or invalid 'fetchrun' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	var errs []string
	str := func(key string, dst *string) {
		switch v := table.RawGetString(key).(type) {
		case *lua.LNilType:
		case lua.LString:
			*dst = string(v)
		default:
			errs = append(errs, fmt.Sprintf("%s: expected string, got %s", key, v.Type()))
		}
	}
	num := func(key string, set func(float64)) {
		switch v := table.RawGetString(key).(type) {
		case *lua.LNilType:
		case lua.LNumber:
			set(float64(v))
		default:
			errs = append(errs, fmt.Sprintf("%s: expected number, got %s", key, v.Type()))
		}
	}
	boolean := func(key string, dst *bool) {
		switch v := table.RawGetString(key).(type) {
		case *lua.LNilType:
		case lua.LBool:
			*dst = bool(v)
		default:
			errs = append(errs, fmt.Sprintf("%s: expected boolean, got %s", key, v.Type()))
		}
	}

	str("repo", &cfg.Repo)
	str("project", &cfg.Project)
	str("version", &cfg.Version)
	str("downloads_dir", &cfg.DownloadsDir)
	str("api_base", &cfg.APIBase)
	str("user_agent", &cfg.UserAgent)
	num("parallelism", func(f float64) { cfg.Parallelism = int(f) })
	num("small_file_threshold", func(f float64) { cfg.SmallFileThreshold = int64(f) })
	num("progress_interval_ms", func(f float64) { cfg.ProgressInterval = time.Duration(f * float64(time.Millisecond)) })
	num("progress_step", func(f float64) { cfg.ProgressStep = f })
	num("requests_per_second", func(f float64) { cfg.RequestsPerSecond = int(f) })
	num("burst", func(f float64) { cfg.Burst = int(f) })
	boolean("launch", &cfg.Launch)
	boolean("elevate", &cfg.Elevate)

	switch v := table.RawGetString("args").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		args := []string{}
		// Nil entries (from platform.when) are skipped by ForEach.
		v.ForEach(func(_, value lua.LValue) {
			if s, ok := value.(lua.LString); ok {
				args = append(args, string(s))
			}
		})
		cfg.Args = args
	default:
		errs = append(errs, fmt.Sprintf("args: expected table, got %s", v.Type()))
	}

	if len(errs) > 0 {
		return &ParseError{
			Message: "invalid 'fetchrun' table",
			Detail:  strings.Join(errs, "; "),
		}
	}
	return nil
}

// FormatError formats a ParseError for user display. Without verbose the Lua
// stack traceback is dropped.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return err.Error()
	}
	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
	}
	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	return fmt.Sprintf("%s: %s", parseErr.Message, detail)
}
