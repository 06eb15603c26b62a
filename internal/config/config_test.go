package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0 2 * * *", cfg.Collectors.CrowdTangle.Schedule)
	assert.Equal(t, []string{"pol"}, cfg.Collectors.FourChan.Boards)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 50, cfg.Processing.TopN)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
keywords:
  antivax:
    - vaccine mandate
    - medical freedom
collectors:
  fourchan:
    boards: [pol, x]
storage:
  data_dir: /srv/civiclens
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"vaccine mandate", "medical freedom"}, cfg.Keywords["antivax"])
	assert.Equal(t, []string{"pol", "x"}, cfg.Collectors.FourChan.Boards)
	assert.Equal(t, "/srv/civiclens", cfg.Storage.DataDir)
	// Settings the file omits keep their defaults.
	assert.Equal(t, "0 3 * * *", cfg.Collectors.Pushshift.Schedule)
	assert.Equal(t, "/srv/civiclens/twitter", cfg.Storage.PlatformDir("twitter"))
}

func TestLoadMergesKeywordFiles(t *testing.T) {
	dir := t.TempDir()
	kwPath := filepath.Join(dir, "election.txt")
	require.NoError(t, os.WriteFile(kwPath, []byte("  drop box  \n\nballot harvesting\n\t\nstop the steal\n"), 0o644))

	path := filepath.Join(dir, "config.yaml")
	yaml := `
keywords:
  election:
    - voter fraud
keyword_files:
  election: ` + kwPath + `
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// File lines are trimmed, blanks skipped, and appended after the
	// inline keywords.
	assert.Equal(t, []string{"voter fraud", "drop box", "ballot harvesting", "stop the steal"},
		cfg.Keywords["election"])
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice\n  bob \n\ncarol"), 0o644))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, lines)

	_, err = ReadLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("CROWDTANGLE_TOKEN", "ct-token")
	t.Setenv("TWITTER_BEARER_TOKEN", "tw-token")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ct-token", cfg.Credentials.CrowdTangleToken)
	assert.Equal(t, "tw-token", cfg.Credentials.TwitterBearer)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Keywords = map[string][]string{"antivax": {"vaccine mandate"}}
	cfg.Storage.DataDir = "./data"
	cfg.Credentials.CrowdTangleToken = "x"
	cfg.Credentials.TwitterBearer = "y"
	cfg.Credentials.FBAppID = "a"
	cfg.Credentials.FBAppSecret = "b"
	cfg.Collectors.CrowdTangle.Enabled = true
	cfg.Collectors.Twitter.Enabled = true
	cfg.Collectors.FBAds.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.Keywords["empty"] = nil
	assert.Error(t, cfg.Validate())
}
