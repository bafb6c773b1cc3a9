// Command sqlc перегенерирует пакеты */service/*/sql из queries.sql рядом с ними.
//
// Базовые настройки движка лежат в .sqlc.base.yaml; для каждого queries.sql
// собирается временный sqlc.yaml с пакетом и каталогом вывода.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	baseConfigName = ".sqlc.base"
	tempConfigName = "sqlc.yaml"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("done")
}

func run() error {
	base := viper.New()
	base.SetConfigName(baseConfigName)
	base.SetConfigType("yaml")
	base.AddConfigPath(".")
	if err := base.ReadInConfig(); err != nil {
		return errors.Wrap(err, "read base config")
	}

	files, err := queryFiles(base.GetStringSlice("sql.0.source"))
	if err != nil {
		return err
	}
	engine := base.Sub("sql.0")
	if engine == nil {
		return errors.New("base config has no sql.0 section")
	}
	defer os.Remove(tempConfigName)

	for _, file := range files {
		if err := writeConfig(base.GetString("version"), engine, file); err != nil {
			return errors.Wrapf(err, "config for %s", file)
		}
		if err := generate(tempConfigName); err != nil {
			return errors.Wrapf(err, "generate %s", file)
		}
		fmt.Printf("%s complete\n", file)
	}
	return nil
}

func queryFiles(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, errors.New("base config has no sql.0.source")
	}
	var files []string
	for _, pattern := range patterns {
		matched, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "glob %q", pattern)
		}
		files = append(files, matched...)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no queries match %v", patterns)
	}
	return files, nil
}

// packageName: имя каталога с queries.sql (обычно "sql").
func packageName(file string) string {
	dir := filepath.Dir(file)
	parts := strings.Split(dir, string(os.PathSeparator))
	return parts[len(parts)-1]
}

func writeConfig(version string, engine *viper.Viper, file string) error {
	engine.Set("queries", file)
	engine.Set("gen.go.package", packageName(file))
	engine.Set("gen.go.out", filepath.Dir(file))

	settings := engine.AllSettings()
	delete(settings, "source")

	bs, err := yaml.Marshal(map[string]interface{}{
		"version": version,
		"sql":     []interface{}{settings},
	})
	if err != nil {
		return errors.Wrap(err, "marshal yaml")
	}
	return errors.Wrap(os.WriteFile(tempConfigName, bs, 0o644), "write sqlc.yaml")
}

func generate(config string) error {
	out, err := exec.Command("sqlc", "generate", "--file", config).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "sqlc: %s", out)
	}
	return nil
}
