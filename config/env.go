package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envSource 进程环境优先，其次是 .env 文件中读到的值
type envSource struct {
	dotenv map[string]string
}

// readDotEnv 按顺序读取 .env 文件，同名变量以先读到的为准；不存在的文件跳过
func readDotEnv(paths []string) (envSource, error) {
	src := envSource{dotenv: make(map[string]string)}
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return src, fmt.Errorf("%s: %w", path, err)
		}
		for k, v := range values {
			if _, seen := src.dotenv[k]; !seen {
				src.dotenv[k] = v
			}
		}
	}
	return src, nil
}

func (s envSource) get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return s.dotenv[key]
}

var durationType = reflect.TypeFor[time.Duration]()

// overlay 按 env tag 把变量写入结构体。嵌套结构体的 key 由各层 tag 以 "_" 连接，
// 例如 VOICEAGENT_SERVER_HTTP_PORT。值为空的变量不覆盖。
func (s envSource) overlay(v reflect.Value, prefix string) error {
	for _, f := range reflect.VisibleFields(v.Type()) {
		tag := f.Tag.Get("env")
		if tag == "" || tag == "-" || len(f.Index) > 1 {
			continue
		}
		key := prefix + "_" + tag
		field := v.FieldByIndex(f.Index)

		if field.Kind() == reflect.Struct {
			if err := s.overlay(field, key); err != nil {
				return err
			}
			continue
		}
		raw := s.get(key)
		if raw == "" {
			continue
		}
		if err := parseInto(field, raw); err != nil {
			return fmt.Errorf("%s=%q: %w", key, raw, err)
		}
	}
	return nil
}

// parseInto 支持字符串、整数、time.Duration、浮点、布尔与逗号分隔的字符串切片
func parseInto(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}

	switch kind := field.Kind(); {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
	case kind == reflect.String:
		field.SetString(raw)
	case kind >= reflect.Int && kind <= reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case kind == reflect.Float32 || kind == reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case kind == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case kind == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var items []string
		for item := range strings.SplitSeq(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
