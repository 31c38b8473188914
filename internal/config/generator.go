package config

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Generator renders a Config as a Lua config file that ParseString accepts.
type Generator struct {
	indent string
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{indent: "  "}
}

// Generate returns Lua source for cfg.
func (g *Generator) Generate(cfg *Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid config: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("-- fetchrun configuration\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(time.Now().UTC().Format(time.RFC3339))
	buf.WriteString("\n--\n")
	buf.WriteString("-- The read-only `platform` table (platform.os, platform.asset_arch,\n")
	buf.WriteString("-- platform.when(cond, value), ...) is available here.\n\n")

	buf.WriteString("fetchrun = {\n")
	g.str(&buf, "repo", cfg.Repo)
	g.str(&buf, "project", cfg.Project)
	g.str(&buf, "version", cfg.Version)
	g.str(&buf, "downloads_dir", cfg.DownloadsDir)
	g.str(&buf, "api_base", cfg.APIBase)
	g.str(&buf, "user_agent", cfg.UserAgent)
	g.raw(&buf, "parallelism", strconv.Itoa(cfg.Parallelism))
	g.raw(&buf, "small_file_threshold", strconv.FormatInt(cfg.SmallFileThreshold, 10))
	g.raw(&buf, "progress_interval_ms", strconv.FormatInt(cfg.ProgressInterval.Milliseconds(), 10))
	g.raw(&buf, "progress_step", strconv.FormatFloat(cfg.ProgressStep, 'g', -1, 64))
	g.raw(&buf, "requests_per_second", strconv.Itoa(cfg.RequestsPerSecond))
	g.raw(&buf, "burst", strconv.Itoa(cfg.Burst))
	g.raw(&buf, "launch", strconv.FormatBool(cfg.Launch))
	g.raw(&buf, "elevate", strconv.FormatBool(cfg.Elevate))

	buf.WriteString(g.indent + "args = {")
	for i, arg := range cfg.Args {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(luaQuote(arg))
	}
	buf.WriteString("},\n")
	buf.WriteString("}\n")

	return buf.String(), nil
}

func (g *Generator) str(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s%s = %s,\n", g.indent, key, luaQuote(value))
}

func (g *Generator) raw(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s%s = %s,\n", g.indent, key, value)
}

// luaQuote quotes s as a Lua string literal. Go's %q escapes are a subset
// of what Lua accepts for printable input, except \x which Lua 5.1 lacks, so
// non-printable bytes are written as decimal escapes.
func luaQuote(s string) string {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case c == '\n':
			buf.WriteString(`\n`)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&buf, "\\%03d", c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
	return buf.String()
}
