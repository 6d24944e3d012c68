package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCfgPath(t *testing.T) {
	assert.Panics(t, func() { GetCfgPath("") })

	abs := "/tmp/apiserver.yaml"
	assert.Equal(t, abs, GetCfgPath(abs))

	old, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(old) })

	tmp := t.TempDir()
	_ = os.Chdir(tmp)

	// nothing in the working dir: fall back to /etc/crewbase
	assert.Equal(t, "/etc/crewbase/apiserver.yaml", GetCfgPath("apiserver.yaml"))

	// file in ./configs takes precedence over the fallback
	assert.NoError(t, os.MkdirAll(filepath.Join(tmp, "configs"), 0755))
	cfgPath := filepath.Join(tmp, "configs", "apiserver.yaml")
	assert.NoError(t, os.WriteFile(cfgPath, []byte("logger: {}"), 0644))
	got := GetCfgPath("apiserver.yaml")
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "apiserver.yaml", filepath.Base(got))
}
