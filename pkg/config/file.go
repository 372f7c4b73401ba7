package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

// DefaultPath is the system configuration file.
const DefaultPath = "/etc/thinkbatt.conf"

var defaultValues = map[string]any{
	KeyNatACPIEnable:             true,
	KeyTPSmapiEnable:             true,
	KeyRestoreThresholdsOnResume: true,
	KeyReapplyThresholdsCron:     "",
	KeyAllowNonRootAccess:        false,
}

var _ Config = &File{}

// bareDefault matches an unquoted default value, as written in TLP
// configuration files.
var bareDefault = regexp.MustCompile(`(?m)^(\s*[A-Za-z0-9_]+\s*=\s*)(?i:default)(\s*(?:#.*)?)$`)

// File is a Config stored as KEY=value lines. Values are TOML scalars:
// integers, booleans or quoted strings. Environment variables named like a
// key take precedence over the file.
type File struct {
	values   map[string]any
	mu       *sync.RWMutex
	filepath string
	lookup   func(string) (string, bool)
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
		lookup:   os.LookupEnv,
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// NewFileFromValues returns a File holding values without reading anything.
// The environment is ignored.
func NewFileFromValues(values map[string]any, configPath string) *File {
	if values == nil {
		values = map[string]any{}
	}

	return &File{
		values:   values,
		mu:       &sync.RWMutex{},
		filepath: configPath,
		lookup:   func(string) (string, bool) { return "", false },
	}
}

// Lookup returns the raw value of key as a string.
func (f *File) Lookup(key string) (string, bool) {
	if f.values == nil {
		panic("config is nil")
	}

	if v, ok := f.lookup(key); ok {
		return strings.TrimSpace(v), true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.values[key]
	if !ok {
		return "", false
	}
	return formatValue(v), true
}

func (f *File) boolean(key string) bool {
	if v, ok := f.Lookup(key); ok {
		b, err := parseBool(v)
		if err == nil {
			return b
		}
		logrus.WithField("key", key).WithError(err).Warn("invalid boolean in configuration, using default")
	}
	return defaultValues[key].(bool)
}

func (f *File) ChargeThreshold(k battery.Kind, id string) (string, bool) {
	return f.Lookup(ThresholdKey(k, id))
}

func (f *File) NatACPIEnabled() bool {
	return f.boolean(KeyNatACPIEnable)
}

func (f *File) TPSmapiEnabled() bool {
	return f.boolean(KeyTPSmapiEnable)
}

func (f *File) RestoreThresholdsOnResume() bool {
	return f.boolean(KeyRestoreThresholdsOnResume)
}

func (f *File) ReapplyThresholdsCron() string {
	v, _ := f.Lookup(KeyReapplyThresholdsCron)
	return v
}

func (f *File) AllowNonRootAccess() bool {
	return f.boolean(KeyAllowNonRootAccess)
}

// SetChargeThreshold stores a threshold. An empty value removes the key.
func (f *File) SetChargeThreshold(k battery.Kind, id string, value string) {
	if f.values == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := ThresholdKey(k, id)
	if value == "" {
		delete(f.values, key)
		return
	}
	if i, err := strconv.Atoi(value); err == nil {
		f.values[key] = int64(i)
		return
	}
	f.values[key] = value
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file is an empty config.
			f.values = map[string]any{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	b = bareDefault.ReplaceAll(b, []byte(`${1}"default"${2}`))

	values := map[string]any{}
	md, err := toml.NewDecoder(bytes.NewReader(b)).Decode(&values)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to parse config file %s", f.filepath)
	}
	for key, v := range values {
		switch v.(type) {
		case int64, bool, string:
		default:
			return fmt.Errorf("config file %s: %s must be an integer, a boolean or a string", f.filepath, key)
		}
	}
	logrus.WithFields(logrus.Fields{
		"path": f.filepath,
		"keys": len(md.Keys()),
	}).Debug("config file loaded")

	f.values = values
	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.values == nil {
		return pkgerrors.New("config is nil")
	}

	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("# thinkbatt configuration\n")
	for _, k := range keys {
		line, err := encodeLine(k, f.values[k])
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to encode %s", k)
		}
		buf.WriteString(line)
	}

	err := os.WriteFile(f.filepath, buf.Bytes(), 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

// encodeLine renders one key as KEY=value, without spaces around "=".
func encodeLine(key string, v any) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(map[string]any{key: v}); err != nil {
		return "", err
	}
	line := strings.TrimSpace(buf.String())
	return strings.Replace(line, " = ", "=", 1) + "\n", nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.values == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"natacpiEnable":             f.NatACPIEnabled(),
		"tpsmapiEnable":             f.TPSmapiEnabled(),
		"restoreThresholdsOnResume": f.RestoreThresholdsOnResume(),
		"reapplyThresholdsCron":     f.ReapplyThresholdsCron(),
		"allowNonRootAccess":        f.AllowNonRootAccess(),
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return strings.TrimSpace(x)
	default:
		return fmt.Sprint(x)
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
