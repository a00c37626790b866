package utils

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"
)

func DoOrDie(err error) {
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func JsonString(obj interface{}) string {
	bytes, err := json.MarshalIndent(obj, "", "  ")
	DoOrDie(errors.Wrapf(err, "unable to marshal json"))
	return string(bytes)
}

func ParseJson[T any](bs []byte) (*T, error) {
	var t T
	if err := json.Unmarshal(bs, &t); err != nil {
		return nil, errors.Wrapf(err, "unable to unmarshal json")
	}
	return &t, nil
}

func ParseJsonFromFile[T any](path string) (*T, error) {
	bytes, err := ReadFileBytes(path)
	if err != nil {
		return nil, err
	}
	return ParseJson[T](bytes)
}

func ParseYaml[T any](bs []byte) (*T, error) {
	var t T
	if err := yaml.Unmarshal(bs, &t); err != nil {
		return nil, errors.Wrapf(err, "unable to unmarshal yaml")
	}
	return &t, nil
}

func ParseYamlStrict[T any](bs []byte) (*T, error) {
	var t T
	if err := yaml.UnmarshalStrict(bs, &t); err != nil {
		return nil, errors.Wrapf(err, "unable to unmarshal yaml")
	}
	return &t, nil
}

func ParseYamlFromFileStrict[T any](path string) (*T, error) {
	bytes, err := ReadFileBytes(path)
	if err != nil {
		return nil, err
	}
	return ParseYamlStrict[T](bytes)
}

// WriteJsonToFile writes obj as indented json, creating parent directories as needed
func WriteJsonToFile(obj interface{}, path string) error {
	bytes, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "unable to marshal json for %s", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "unable to create directory %s", dir)
		}
	}
	return WriteFile(path, string(bytes)+"\n", 0644)
}

func DoesFileExist(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	} else if errors.Is(err, os.ErrNotExist) {
		return false
	} else {
		panic(errors.Wrapf(err, "unable to determine if file %s exists", path))
	}
}

// WriteFile wraps calls to os.WriteFile, ensuring that errors are wrapped in a stack trace
func WriteFile(filename string, contents string, perm fs.FileMode) error {
	return errors.Wrapf(os.WriteFile(filename, []byte(contents), perm), "unable to write file %s", filename)
}

// ReadFileBytes wraps calls to os.ReadFile, ensuring that errors are wrapped in a stack trace
func ReadFileBytes(filename string) ([]byte, error) {
	bytes, err := os.ReadFile(filename)
	return bytes, errors.Wrapf(err, "unable to read file %s", filename)
}

// AtomicWriteFile writes to a temp file in the same directory and renames it over path, so that
// readers see either the old contents or the new ones.
func AtomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create directory %s", dir)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrapf(err, "unable to create temp file for %s", path)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return errors.Wrapf(err, "unable to write temp file %s", tmpPath)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return errors.Wrapf(err, "unable to chmod temp file %s", tmpPath)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrapf(err, "unable to close temp file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "unable to rename %s to %s", tmpPath, path)
	}
	tmpPath = ""
	return nil
}

func ParseYamlFromFile[T any](path string) (*T, error) {
	bytes, err := ReadFileBytes(path)
	if err != nil {
		return nil, err
	}
	return ParseYaml[T](bytes)
}
