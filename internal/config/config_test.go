package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
repos:
  - owner: org
    name: repo
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".github-trailer", "trailer.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.Log.Level)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "github", cfg.Servers[0].Label)
	assert.Equal(t, "GITHUB_TOKEN", cfg.Servers[0].TokenEnv)

	settings := cfg.DomainSettings()
	assert.Equal(t, 5*time.Minute, settings.Period)
	assert.Equal(t, 0.2, settings.LowWaterMark)
	assert.Equal(t, domain.SortByUpdated, settings.SortField)
	assert.Equal(t, domain.StatusFilterAll, settings.StatusFilteringMode)

	assert.Equal(t, []domain.Repo{{Server: "github", Owner: "org", Name: "repo", Enabled: true}}, cfg.DomainRepos())
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/trailer/db.sqlite
log_file: /var/log/trailer.log
log:
  level: debug
servers:
  - label: ghe
    api_url: https://ghe.example.com/api/v3/
    graphql_url: https://ghe.example.com/api/graphql
    token_env: GHE_TOKEN
repos:
  - server: ghe
    owner: org
    name: repo
    enabled: false
settings:
  period: 90s
  group_by_repo: true
  sort_field: title
  sort_descending: true
  status_filtering_mode: exclude
  status_filtering_terms: [codecov]
  show_issues_menu: true
  low_water_mark: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/trailer/db.sqlite", cfg.DBPath)
	settings := cfg.DomainSettings()
	assert.Equal(t, 90*time.Second, settings.Period)
	assert.True(t, settings.GroupByRepo)
	assert.Equal(t, domain.SortByTitle, settings.SortField)
	assert.Equal(t, domain.StatusFilterExclude, settings.StatusFilteringMode)
	assert.Equal(t, []string{"codecov"}, settings.StatusFilteringTerms)
	assert.True(t, settings.ShowIssuesMenu)
	assert.Equal(t, 0.0, settings.LowWaterMark)

	repos := cfg.DomainRepos()
	require.Len(t, repos, 1)
	assert.False(t, repos[0].Enabled)
	assert.Equal(t, "ghe", repos[0].Server)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name           string
		body           string
		expectedErrMsg string
	}{
		{name: "no repos", body: `log: {level: info}`, expectedErrMsg: "no repos configured"},
		{name: "missing owner", body: "repos:\n  - name: repo\n", expectedErrMsg: "owner required"},
		{name: "unknown server", body: "repos:\n  - server: nope\n    owner: o\n    name: r\n", expectedErrMsg: `unknown server "nope"`},
		{name: "bad period", body: "repos: [{owner: o, name: r}]\nsettings: {period: soon}\n", expectedErrMsg: "parse settings.period"},
		{name: "period too short", body: "repos: [{owner: o, name: r}]\nsettings: {period: 1s}\n", expectedErrMsg: "at least 10s"},
		{name: "bad sort field", body: "repos: [{owner: o, name: r}]\nsettings: {sort_field: stars}\n", expectedErrMsg: "invalid sort_field"},
		{name: "bad filter mode", body: "repos: [{owner: o, name: r}]\nsettings: {status_filtering_mode: some}\n", expectedErrMsg: "invalid status_filtering_mode"},
		{name: "bad low water mark", body: "repos: [{owner: o, name: r}]\nsettings: {low_water_mark: 2}\n", expectedErrMsg: "low_water_mark"},
		{name: "half enterprise server", body: "servers: [{label: ghe, api_url: https://x}]\nrepos: [{owner: o, name: r}]\n", expectedErrMsg: "must be set together"},
		{name: "malformed yaml", body: "repos: [", expectedErrMsg: "parse config"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErrMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestServerToken(t *testing.T) {
	s := ServerConfig{Label: "gh", TokenEnv: "TRAILER_TEST_TOKEN"}

	t.Setenv("TRAILER_TEST_TOKEN", "")
	_, err := s.Token()
	assert.ErrorIs(t, err, domain.ErrNoCredentials)

	t.Setenv("TRAILER_TEST_TOKEN", " secret ")
	token, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
}

func TestDomainServers(t *testing.T) {
	t.Setenv("TRAILER_TEST_TOKEN", "secret")
	cfg := &Config{Servers: []ServerConfig{
		{Label: "gh", TokenEnv: "TRAILER_TEST_TOKEN"},
		{Label: "ghe", TokenEnv: "TRAILER_TEST_MISSING_TOKEN"},
	}}
	servers := cfg.DomainServers()
	require.Len(t, servers, 2)
	assert.True(t, servers[0].GoodToGo)
	assert.False(t, servers[1].GoodToGo)
}
