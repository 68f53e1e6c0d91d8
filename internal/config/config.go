// Package config は、YAML 設定ファイルの読み込みとデフォルト値を扱います。
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/shouni/go-gallery-trend/pkg/aggregate"
	"github.com/shouni/go-gallery-trend/pkg/crawler"
	"github.com/shouni/go-gallery-trend/pkg/httpclient"
	"github.com/shouni/go-gallery-trend/pkg/listing"
	"github.com/shouni/go-gallery-trend/pkg/page"
	"github.com/shouni/go-gallery-trend/pkg/retry"
)

// DefaultDays は集計期間の日数のデフォルト値です (今日を含む)。
const DefaultDays = 7

// DefaultKeywords は既定の検索キーワードです。
var DefaultKeywords = []string{"피자헛", "도미노", "파파존스", "피자스쿨"}

type SourceConfig struct {
	BaseURL      string `yaml:"base_url"`
	BoardID      string `yaml:"board_id"`
	SearchType   string `yaml:"search_type"`
	RowSelector  string `yaml:"row_selector"`
	DateSelector string `yaml:"date_selector"`
}

type LogicConfig struct {
	MaxPages          int    `yaml:"max_pages"`
	Days              int    `yaml:"days"`
	PageDelayMS       int    `yaml:"page_delay_ms"`
	FailurePauseMS    int    `yaml:"failure_pause_ms"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
	ReadTimeoutSec    int    `yaml:"read_timeout_sec"`
	MaxAttempts       int    `yaml:"max_attempts"`
	Concurrency       int    `yaml:"concurrency"`
	Timezone          string `yaml:"timezone"`
}

type Config struct {
	Keywords []string     `yaml:"keywords"`
	Source   SourceConfig `yaml:"source"`
	Logic    LogicConfig  `yaml:"logic"`
}

// Default はデフォルト設定を返します。
func Default() *Config {
	endpoint := page.DefaultEndpoint()
	selectors := listing.DefaultSelectors()
	policy := crawler.DefaultPolicy()
	timeouts := httpclient.DefaultTimeouts()

	return &Config{
		Keywords: append([]string(nil), DefaultKeywords...),
		Source: SourceConfig{
			BaseURL:      endpoint.BaseURL,
			BoardID:      endpoint.BoardID,
			SearchType:   endpoint.SearchType,
			RowSelector:  selectors.Row,
			DateSelector: selectors.Date,
		},
		Logic: LogicConfig{
			MaxPages:          policy.MaxPages,
			Days:              DefaultDays,
			PageDelayMS:       int(policy.PageDelay / time.Millisecond),
			FailurePauseMS:    int(policy.FailurePause / time.Millisecond),
			ConnectTimeoutSec: int(timeouts.Connect / time.Second),
			ReadTimeoutSec:    int(timeouts.Read / time.Second),
			MaxAttempts:       retry.DefaultMaxAttempts,
			Concurrency:       aggregate.DefaultConcurrency,
			Timezone:          crawler.DefaultTimezone,
		},
	}
}

// LoadConfig は path の YAML をデフォルト設定の上に読み込みます。ファイルにない項目はデフォルト値のままです。
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗しました: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイル %s の解析に失敗しました: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定ファイル %s が不正です: %w", path, err)
	}
	return cfg, nil
}

// Validate は値の範囲を検証します。
func (c *Config) Validate() error {
	l := c.Logic
	switch {
	case l.MaxPages <= 0:
		return fmt.Errorf("max_pages は 1 以上である必要があります: %d", l.MaxPages)
	case l.Days <= 0:
		return fmt.Errorf("days は 1 以上である必要があります: %d", l.Days)
	case l.PageDelayMS < 0 || l.FailurePauseMS < 0:
		return fmt.Errorf("待機時間に負の値は指定できません")
	case l.ConnectTimeoutSec < 0 || l.ReadTimeoutSec < 0:
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	case l.Concurrency < 0:
		return fmt.Errorf("concurrency に負の値は指定できません: %d", l.Concurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location は設定されたタイムゾーンを返します。
func (c *Config) Location() (*time.Location, error) {
	if c.Logic.Timezone == "" || c.Logic.Timezone == crawler.DefaultTimezone {
		return crawler.DefaultLocation(), nil
	}
	loc, err := time.LoadLocation(c.Logic.Timezone)
	if err != nil {
		return nil, fmt.Errorf("タイムゾーン %q を読み込めません: %w", c.Logic.Timezone, err)
	}
	return loc, nil
}

// Options は設定を aggregate.Options に変換します。
func (c *Config) Options() (aggregate.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return aggregate.Options{}, err
	}

	opts := aggregate.DefaultOptions()
	opts.MaxPages = c.Logic.MaxPages
	opts.Timeouts = httpclient.Timeouts{
		Connect: time.Duration(c.Logic.ConnectTimeoutSec) * time.Second,
		Read:    time.Duration(c.Logic.ReadTimeoutSec) * time.Second,
	}
	opts.Policy = crawler.Policy{
		MaxPages:     c.Logic.MaxPages,
		PageDelay:    time.Duration(c.Logic.PageDelayMS) * time.Millisecond,
		FailurePause: time.Duration(c.Logic.FailurePauseMS) * time.Millisecond,
	}
	opts.Endpoint = page.Endpoint{
		BaseURL:    c.Source.BaseURL,
		BoardID:    c.Source.BoardID,
		SearchType: c.Source.SearchType,
	}
	opts.Selectors = listing.Selectors{Row: c.Source.RowSelector, Date: c.Source.DateSelector}
	opts.Retry.MaxAttempts = c.Logic.MaxAttempts
	opts.Concurrency = c.Logic.Concurrency
	opts.Location = loc
	return opts, nil
}
