// Command shorty-seed creates short links in the configured store.
//
//	shorty-seed -url https://example.com -password hunter2 -max-clicks 100
//	shorty-seed -file links.yaml
//	shorty-seed -samples
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/roniherschmann/shorty-redirect/internal/config"
	"github.com/roniherschmann/shorty-redirect/internal/core"
	"github.com/roniherschmann/shorty-redirect/internal/shortid"
	"github.com/roniherschmann/shorty-redirect/internal/store"
)

// linkSpec is one entry of a -file document.
type linkSpec struct {
	Code        string `yaml:"code"`
	URL         string `yaml:"url"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Domain      string `yaml:"domain"`
	Password    string `yaml:"password"`
	MaxClicks   int64  `yaml:"max_clicks"`
	Expires     string `yaml:"expires"` // RFC 3339 time or a duration from now
	Disabled    bool   `yaml:"disabled"`
}

var samples = []linkSpec{
	{Code: "github", URL: "https://github.com", Title: "GitHub", Description: "Where the world builds software"},
	{Code: "google", URL: "https://www.google.com", Title: "Google", Description: "Search the world's information"},
	{Code: "example", URL: "https://example.com", Title: "Example", Description: "An example website"},
}

type linkStore interface {
	core.LinkStore
	Close() error
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath string
		dsn        string
		file       string
		withSample bool
		one        linkSpec
	)
	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&dsn, "dsn", "", "database DSN (overrides env DB_DSN)")
	flag.StringVar(&file, "file", "", "YAML list of links to create")
	flag.BoolVar(&withSample, "samples", false, "create the sample links")
	flag.StringVar(&one.URL, "url", "", "target URL")
	flag.StringVar(&one.Code, "code", "", "short code (generated when empty)")
	flag.StringVar(&one.Title, "title", "", "title")
	flag.StringVar(&one.Description, "description", "", "description")
	flag.StringVar(&one.Domain, "domain", "", "domain")
	flag.StringVar(&one.Password, "password", "", "password required to follow the link")
	flag.Int64Var(&one.MaxClicks, "max-clicks", 0, "click quota, 0 for none")
	flag.StringVar(&one.Expires, "expires", "", "expiry as RFC 3339 time or duration from now")
	flag.BoolVar(&one.Disabled, "disabled", false, "create the link disabled")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if dsn != "" {
		cfg.DBDSN = dsn
	}

	var specs []linkSpec
	if withSample {
		specs = append(specs, samples...)
	}
	if file != "" {
		fromFile, err := readSpecs(file)
		if err != nil {
			log.Fatal().Err(err).Msg("read links file")
		}
		specs = append(specs, fromFile...)
	}
	if one.URL != "" {
		specs = append(specs, one)
	}
	if len(specs) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to create: pass -url, -file or -samples")
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}

	failed := seed(ctx, st, specs, time.Now())
	st.Close()
	if failed > 0 {
		os.Exit(1)
	}
}

func seed(ctx context.Context, st core.LinkStore, specs []linkSpec, now time.Time) (failed int) {
	svc := core.NewService(st, nil, nil, nil)
	for _, s := range specs {
		if s.Code != "" {
			if !shortid.Valid(s.Code) {
				log.Error().Str("code", s.Code).Msg("invalid short code")
				failed++
				continue
			}
			if _, err := st.FindLinkByShortCode(ctx, s.Code); err == nil {
				log.Info().Str("code", s.Code).Msg("exists, skipped")
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				log.Error().Err(err).Str("code", s.Code).Msg("lookup")
				failed++
				continue
			}
		}
		n, err := s.toNewLink(now)
		if err != nil {
			log.Error().Err(err).Str("code", s.Code).Msg("invalid link")
			failed++
			continue
		}
		l, err := svc.CreateLink(ctx, n)
		if err != nil {
			log.Error().Err(err).Str("url", s.URL).Msg("create link")
			failed++
			continue
		}
		ev := log.Info().Int64("id", l.ID).Str("code", l.ShortCode).Str("url", l.OriginalURL)
		if l.HasPassword() {
			ev = ev.Bool("password", true)
		}
		if l.MaxClicks > 0 {
			ev = ev.Int64("max_clicks", l.MaxClicks)
		}
		if l.ExpiresAt != nil {
			ev = ev.Time("expires_at", *l.ExpiresAt)
		}
		ev.Msg("created")
	}
	return failed
}

func (s linkSpec) toNewLink(now time.Time) (core.NewLink, error) {
	n := core.NewLink{
		Code:        s.Code,
		Target:      s.URL,
		Title:       s.Title,
		Description: s.Description,
		Domain:      s.Domain,
		Password:    s.Password,
		MaxClicks:   s.MaxClicks,
		Disabled:    s.Disabled,
	}
	if s.Expires != "" {
		exp, err := parseExpiry(s.Expires, now)
		if err != nil {
			return core.NewLink{}, err
		}
		n.ExpiresAt = &exp
	}
	return n, nil
}

func parseExpiry(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expires %q: want RFC 3339 time or duration", v)
	}
	return now.Add(d).UTC(), nil
}

func readSpecs(path string) ([]linkSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []linkSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return specs, nil
}

func openStore(ctx context.Context, cfg config.Config) (linkStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.DBDSN, 2)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.DriverSQLite:
		lite, err := store.OpenSQLite(cfg.DBDSN, 1)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("store driver %q cannot be seeded", cfg.StoreDriver)
	}
}
