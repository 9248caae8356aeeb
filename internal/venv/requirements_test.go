package venv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requirements.txt")
	content := `# core
fastapi==0.115.0
uvicorn[standard]>=0.30  # server
-r extra.txt
--index-url https://pypi.org/simple

psutil ; sys_platform == "linux"
pydantic_settings~=2.0
mypkg @ https://example.com/mypkg.tar.gz
FastAPI
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	names, err := ParseRequirements(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"fastapi", "uvicorn", "psutil", "pydantic_settings", "mypkg"}, names)
}

func TestParseRequirements_Missing(t *testing.T) {
	_, err := ParseRequirements(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestImportName(t *testing.T) {
	tests := []struct {
		dist string
		want string
	}{
		{"fastapi", "fastapi"},
		{"python-dotenv", "dotenv"},
		{"pydantic_settings", "pydantic_settings"},
		{"pydantic-settings", "pydantic_settings"},
		{"PyYAML", "yaml"},
		{"Jinja2", "jinja2"},
		{"typing-extensions", "typing_extensions"},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.dist, func(t *testing.T) {
			assert.Equal(t, tt.want, ImportName(tt.dist))
		})
	}
}
