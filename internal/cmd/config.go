package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/padbridge/padbridge/internal/configpaths"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ConfigCommand groups config-related subcommands.
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Generate a configuration template"`
}

// ConfigInit writes a template holding every option of one command with its default.
type ConfigInit struct {
	Command string `arg:"" name:"command" help:"Command to generate config for" enum:"bridge,pad,sniff"`
	Format  string `help:"Output format" enum:"json,yaml,toml" default:"json"`
	Output  string `help:"Destination file path (defaults to <command>.<format> in the current directory)"`
	Force   bool   `help:"Overwrite if the file already exists"`
}

var templateCommands = map[string]reflect.Type{
	"bridge": reflect.TypeOf((*Bridge)(nil)).Elem(),
	"pad":    reflect.TypeOf((*Pad)(nil)).Elem(),
	"sniff":  reflect.TypeOf((*Sniff)(nil)).Elem(),
}

var templateEncoders = map[string]func(any) ([]byte, error){
	"json": func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
	"yaml": yaml.Marshal,
	"yml":  yaml.Marshal,
	"toml": toml.Marshal,
}

func (c *ConfigInit) Run() error {
	format := strings.ToLower(c.Format)
	encode, ok := templateEncoders[format]
	if !ok {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	typ, ok := templateCommands[c.Command]
	if !ok {
		return fmt.Errorf("unknown command %q; expected bridge, pad or sniff", c.Command)
	}

	dest := c.Output
	if dest == "" {
		dest = c.Command + "." + configpaths.Ext(format)
	}
	if _, err := os.Stat(dest); err == nil && !c.Force {
		return errors.New("destination exists; use --force to overwrite")
	}

	data, err := encode(template(typ))
	if err != nil {
		return fmt.Errorf("encode %s template: %w", format, err)
	}
	if err := configpaths.EnsureDir(dest); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s config template to %s\n", c.Command, dest)
	return nil
}

// template maps a kong command struct to the nested keys its config loaders
// read. Prefixed embeds become sections, plain embeds are flattened.
func template(t reflect.Type) map[string]any {
	out := map[string]any{}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Tag.Get("kong") == "-" || len(f.Index) > 1 {
			continue
		}
		if _, embed := f.Tag.Lookup("embed"); embed {
			sub := template(f.Type)
			if name := strings.TrimSuffix(f.Tag.Get("prefix"), "."); name != "" {
				out[name] = sub
				continue
			}
			for k, v := range sub {
				out[k] = v
			}
			continue
		}
		if v, ok := defaultValue(f.Type, f.Tag.Get("default")); ok {
			out[lowerCamel(f.Name)] = v
		}
	}
	return out
}

var durationType = reflect.TypeOf((*time.Duration)(nil)).Elem()

// defaultValue parses a kong default tag into a value of type t. Durations
// stay strings so the template reads the way the flag is written.
func defaultValue(t reflect.Type, def string) (any, bool) {
	if t == durationType {
		if def == "" {
			def = "0s"
		}
		return def, true
	}
	if t.Kind() == reflect.Struct {
		return template(t), true
	}

	v := reflect.New(t).Elem()
	var err error
	switch t.Kind() {
	case reflect.String:
		v.SetString(def)
	case reflect.Bool:
		var b bool
		if def != "" {
			b, err = strconv.ParseBool(def)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if def != "" {
			n, err = strconv.ParseInt(def, 0, t.Bits())
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		if def != "" {
			n, err = strconv.ParseUint(def, 0, t.Bits())
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		var n float64
		if def != "" {
			n, err = strconv.ParseFloat(def, t.Bits())
		}
		v.SetFloat(n)
	default:
		return nil, false
	}
	if err != nil {
		return reflect.Zero(t).Interface(), true
	}
	return v.Interface(), true
}

// lowerCamel lowercases the leading run of capitals: USB -> usb, MailboxWait -> mailboxWait.
func lowerCamel(s string) string {
	r := []rune(s)
	for i := 0; i < len(r) && unicode.IsUpper(r[i]); i++ {
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}
