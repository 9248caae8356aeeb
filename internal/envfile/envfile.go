// Package envfile writes the application's .env file.
//
// The application ships a .env.example template. Render copies it to .env
// and replaces the value of selected KEY= lines, leaving every other line
// (comments included) untouched.
package envfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ErrNoTemplate is returned by Render when the .env.example file is missing.
// Callers treat it as a warning: the application can still start with its
// built-in defaults.
var ErrNoTemplate = errors.New(".env.example not found")

// Render reads example, replaces every line starting with "KEY=" for each
// key in values, and writes the result to dest with mode 0600 (the file
// holds the API key).
func Render(example, dest string, values map[string]string) error {
	data, err := os.ReadFile(example)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoTemplate
		}
		return fmt.Errorf("failed to read %s: %w", example, err)
	}

	out, err := Replace(bytes.NewReader(data), values)
	if err != nil {
		return err
	}

	if err := os.WriteFile(dest, out, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

// Replace applies the KEY=value substitutions to an env stream.
// Keys absent from the stream are not appended.
func Replace(r io.Reader, values map[string]string) ([]byte, error) {
	var out bytes.Buffer
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			for key, value := range values {
				if strings.HasPrefix(line, key+"=") {
					line = key + "=" + value + "\n"
					break
				}
			}
			out.WriteString(line)
		}
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read env template: %w", err)
		}
	}
}

// Lookup returns the value of key in the env file at path, or "" when the
// file or key is absent.
func Lookup(path, key string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, key+"="); ok {
			return strings.Trim(strings.TrimSpace(v), `"'`)
		}
	}
	return ""
}

// Backup copies the env file to backup, preserving its mode. A missing env
// file is not an error; it returns false.
func Backup(env, backup string) (bool, error) {
	return copyFile(env, backup)
}

// Restore moves backup back into place as env. A missing backup returns false.
func Restore(backup, env string) (bool, error) {
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Rename(backup, env); err == nil {
		return true, nil
	}
	// Rename fails across filesystems (/tmp is often tmpfs).
	if ok, err := copyFile(backup, env); !ok || err != nil {
		return ok, err
	}
	return true, os.Remove(backup)
}

// NewAPIKey returns a random API key suggestion.
func NewAPIKey() string {
	return uuid.NewString()
}

func copyFile(src, dst string) (bool, error) {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return true, nil
}
