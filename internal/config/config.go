// Package config loads the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerLabel = "github"
	defaultTokenEnv    = "GITHUB_TOKEN"
)

type Config struct {
	DBPath   string         `yaml:"db_path"`
	LogFile  string         `yaml:"log_file"`
	Log      LogConfig      `yaml:"log"`
	Servers  []ServerConfig `yaml:"servers"`
	Repos    []RepoConfig   `yaml:"repos"`
	Settings SettingsConfig `yaml:"settings"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Label      string `yaml:"label"`
	APIURL     string `yaml:"api_url"`
	GraphQLURL string `yaml:"graphql_url"`
	TokenEnv   string `yaml:"token_env"`
}

type RepoConfig struct {
	Server  string `yaml:"server"`
	Owner   string `yaml:"owner"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

type SettingsConfig struct {
	Period                            time.Duration `yaml:"-"`
	RawPeriod                         string        `yaml:"period"`
	GroupByRepo                       bool          `yaml:"group_by_repo"`
	SortField                         string        `yaml:"sort_field"`
	SortDescending                    bool          `yaml:"sort_descending"`
	IncludeReposInFilter              bool          `yaml:"include_repos_in_filter"`
	IncludeLabelsInFilter             bool          `yaml:"include_labels_in_filter"`
	IncludeStatusesInFilter           bool          `yaml:"include_statuses_in_filter"`
	HideUncommented                   bool          `yaml:"hide_uncommented"`
	StatusFilteringMode               string        `yaml:"status_filtering_mode"`
	StatusFilteringTerms              []string      `yaml:"status_filtering_terms"`
	ShowIssuesMenu                    bool          `yaml:"show_issues_menu"`
	MarkUnmergeableOnUserSectionsOnly bool          `yaml:"mark_unmergeable_on_user_sections_only"`
	LowWaterMark                      *float64      `yaml:"low_water_mark,omitempty"`
}

// DefaultPath is where the configuration lives when --config is not given.
func DefaultPath() string {
	return expandHome("~/.github-trailer/config.yaml")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if c.DBPath == "" {
		c.DBPath = "~/.github-trailer/trailer.db"
	}
	c.DBPath = expandHome(c.DBPath)
	c.LogFile = expandHome(c.LogFile)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if len(c.Servers) == 0 {
		c.Servers = []ServerConfig{{Label: defaultServerLabel}}
	}
	for i := range c.Servers {
		if c.Servers[i].Label == "" {
			c.Servers[i].Label = defaultServerLabel
		}
		if c.Servers[i].TokenEnv == "" {
			c.Servers[i].TokenEnv = defaultTokenEnv
		}
	}
	for i := range c.Repos {
		if c.Repos[i].Server == "" {
			c.Repos[i].Server = c.Servers[0].Label
		}
		if c.Repos[i].Enabled == nil {
			enabled := true
			c.Repos[i].Enabled = &enabled
		}
	}

	s := &c.Settings
	if s.RawPeriod == "" {
		s.RawPeriod = "5m"
	}
	d, err := time.ParseDuration(s.RawPeriod)
	if err != nil {
		return fmt.Errorf("parse settings.period %q: %w", s.RawPeriod, err)
	}
	s.Period = d
	if s.SortField == "" {
		s.SortField = string(domain.SortByUpdated)
	}
	if s.StatusFilteringMode == "" {
		s.StatusFilteringMode = string(domain.StatusFilterAll)
	}
	if s.LowWaterMark == nil {
		lwm := 0.2
		s.LowWaterMark = &lwm
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Repos) == 0 {
		return fmt.Errorf("no repos configured")
	}
	labels := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if labels[s.Label] {
			return fmt.Errorf("servers[%d]: duplicate label %q", i, s.Label)
		}
		labels[s.Label] = true
		if (s.APIURL == "") != (s.GraphQLURL == "") {
			return fmt.Errorf("servers[%d]: api_url and graphql_url must be set together", i)
		}
	}
	for i, r := range c.Repos {
		if r.Owner == "" {
			return fmt.Errorf("repos[%d]: owner required", i)
		}
		if r.Name == "" {
			return fmt.Errorf("repos[%d]: name required", i)
		}
		if !labels[r.Server] {
			return fmt.Errorf("repos[%d]: unknown server %q", i, r.Server)
		}
	}

	s := c.Settings
	if s.Period < 10*time.Second {
		return fmt.Errorf("settings.period must be at least 10s, got %s", s.RawPeriod)
	}
	switch domain.SortField(s.SortField) {
	case domain.SortByCreated, domain.SortByUpdated, domain.SortByTitle, domain.SortByNumber:
	default:
		return fmt.Errorf("settings: invalid sort_field %q (created|updated|title|number)", s.SortField)
	}
	switch domain.StatusFilterMode(s.StatusFilteringMode) {
	case domain.StatusFilterAll, domain.StatusFilterInclude, domain.StatusFilterExclude:
	default:
		return fmt.Errorf("settings: invalid status_filtering_mode %q (all|include|exclude)", s.StatusFilteringMode)
	}
	if lwm := *s.LowWaterMark; lwm < 0 || lwm > 1 {
		return fmt.Errorf("settings.low_water_mark must be between 0 and 1, got %v", lwm)
	}
	return nil
}

// DomainSettings converts the settings section.
func (c *Config) DomainSettings() domain.Settings {
	s := c.Settings
	return domain.Settings{
		Period:                            s.Period,
		GroupByRepo:                       s.GroupByRepo,
		SortField:                         domain.SortField(s.SortField),
		SortDescending:                    s.SortDescending,
		IncludeReposInFilter:              s.IncludeReposInFilter,
		IncludeLabelsInFilter:             s.IncludeLabelsInFilter,
		IncludeStatusesInFilter:           s.IncludeStatusesInFilter,
		HideUncommented:                   s.HideUncommented,
		StatusFilteringMode:               domain.StatusFilterMode(s.StatusFilteringMode),
		StatusFilteringTerms:              s.StatusFilteringTerms,
		ShowIssuesMenu:                    s.ShowIssuesMenu,
		MarkUnmergeableOnUserSectionsOnly: s.MarkUnmergeableOnUserSectionsOnly,
		LowWaterMark:                      *s.LowWaterMark,
	}
}

// DomainRepos converts the repo list.
func (c *Config) DomainRepos() []domain.Repo {
	repos := make([]domain.Repo, 0, len(c.Repos))
	for _, r := range c.Repos {
		repos = append(repos, domain.Repo{Server: r.Server, Owner: r.Owner, Name: r.Name, Enabled: *r.Enabled})
	}
	return repos
}

// DomainServers converts the server list. A server is good to go when its
// token variable is set; the user login is resolved later.
func (c *Config) DomainServers() []domain.Server {
	servers := make([]domain.Server, 0, len(c.Servers))
	for _, s := range c.Servers {
		_, err := s.Token()
		servers = append(servers, domain.Server{
			Label:      s.Label,
			APIURL:     s.APIURL,
			GraphQLURL: s.GraphQLURL,
			GoodToGo:   err == nil,
		})
	}
	return servers
}

// Token reads the server's token from the environment.
func (s ServerConfig) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(s.TokenEnv))
	if token == "" {
		return "", fmt.Errorf("server %q: %s is not set: %w", s.Label, s.TokenEnv, domain.ErrNoCredentials)
	}
	return token, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
