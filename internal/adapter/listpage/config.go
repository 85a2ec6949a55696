// Package listpage implements a configuration-driven adapter for board list
// pages that show posts newest-first.
package listpage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultTimezone is used when Config.Timezone is empty.
const DefaultTimezone = "Asia/Seoul"

// Field locates one value inside a row. An empty Selector targets the row
// itself. An empty Attr reads the element text.
type Field struct {
	Selector string `mapstructure:"selector"`
	Attr     string `mapstructure:"attr"`
}

// Fields lists the per-row extraction rules.
type Fields struct {
	Title      Field `mapstructure:"title"`
	Link       Field `mapstructure:"link"`
	Author     Field `mapstructure:"author"`
	Comments   Field `mapstructure:"comments"`
	Views      Field `mapstructure:"views"`
	Recommends Field `mapstructure:"recommends"`
	CreatedAt  Field `mapstructure:"created_at"`
	SourceID   Field `mapstructure:"source_id"`
}

// SessionConfig enables cookie warm-up before crawling.
type SessionConfig struct {
	WarmupURL string        `mapstructure:"warmup_url"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Config describes one board.
type Config struct {
	URLTemplate       string            `mapstructure:"url_template"`
	StartPage         int               `mapstructure:"start_page"`
	MaxPages          int               `mapstructure:"max_pages"`
	RowSelector       string            `mapstructure:"row_selector"`
	SkipRowSelector   string            `mapstructure:"skip_row_selector"`
	Fields            Fields            `mapstructure:"fields"`
	SourceIDPattern   string            `mapstructure:"source_id_pattern"`
	TimeLayouts       []string          `mapstructure:"time_layouts"`
	Timezone          string            `mapstructure:"timezone"`
	PageDelayMin      time.Duration     `mapstructure:"page_delay_min"`
	PageDelayMax      time.Duration     `mapstructure:"page_delay_max"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Render            bool              `mapstructure:"render"`
	Archive           bool              `mapstructure:"archive"`
	Headers           map[string]string `mapstructure:"headers"`
	Session           SessionConfig     `mapstructure:"session"`
}

// Validate reports the first invalid setting. prefix names the config key the
// definition was loaded from and is used in messages.
func (c Config) Validate(prefix string) error {
	var errs []error
	if strings.Count(c.URLTemplate, "%d") != 1 {
		errs = append(errs, fmt.Errorf("%s.url_template must contain exactly one %%d page placeholder", prefix))
	}
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("%s.max_pages must be positive", prefix))
	}
	if c.StartPage < 0 {
		errs = append(errs, fmt.Errorf("%s.start_page must be >= 0", prefix))
	}
	if c.RowSelector == "" {
		errs = append(errs, fmt.Errorf("%s.row_selector is required", prefix))
	}
	if c.Fields.Title.Selector == "" && c.Fields.Title.Attr == "" {
		errs = append(errs, fmt.Errorf("%s.fields.title is required", prefix))
	}
	if c.Fields.CreatedAt.Selector == "" && c.Fields.CreatedAt.Attr == "" {
		errs = append(errs, fmt.Errorf("%s.fields.created_at is required", prefix))
	}
	if c.SourceIDPattern != "" {
		re, err := regexp.Compile(c.SourceIDPattern)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s.source_id_pattern: %w", prefix, err))
		case re.NumSubexp() < 1:
			errs = append(errs, fmt.Errorf("%s.source_id_pattern needs a capture group", prefix))
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("%s.timezone: %w", prefix, err))
		}
	}
	if c.PageDelayMin < 0 || c.PageDelayMax < c.PageDelayMin {
		errs = append(errs, fmt.Errorf("%s.page_delay_max must be >= page_delay_min >= 0", prefix))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%s.requests_per_second must be >= 0", prefix))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, fmt.Errorf("%s.session.ttl must be >= 0", prefix))
	}
	return errors.Join(errs...)
}

func (c Config) location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
