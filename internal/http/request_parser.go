package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/core"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/report"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a single JSON object into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON: %v", err)
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return s.validate.Struct(dst)
}

// queryInt parses key as an integer, returning def when it is absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("%s must be an integer", key)
	}
	return n, nil
}

func (s *Server) queryYear(r *http.Request) (int, error) {
	year, err := queryInt(r, "year", s.now().Year())
	if err != nil {
		return 0, err
	}
	if year < 1900 || year > 9999 {
		return 0, badRequest("year out of range")
	}
	return year, nil
}

func (s *Server) queryMonth(r *http.Request) (int, error) {
	month, err := queryInt(r, "month", int(s.now().Month()))
	if err != nil {
		return 0, err
	}
	if month < 1 || month > 12 {
		return 0, badRequest("month must be between 1 and 12")
	}
	return month, nil
}

// queryType parses the category type, defaulting to def. An empty def makes
// the parameter required.
func queryType(r *http.Request, def core.CategoryType) (core.CategoryType, error) {
	v := core.CategoryType(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))))
	if v == "" {
		v = def
	}
	if !v.Valid() {
		return "", badRequest("type must be income or expense")
	}
	return v, nil
}

// queryIDs accepts ids=a,b and repeated ids=a&ids=b, dropping blanks and
// duplicates while keeping order.
func queryIDs(r *http.Request) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, raw := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func queryDateRange(r *http.Request) (report.DateRange, error) {
	var dr report.DateRange
	for key, dst := range map[string]*core.Date{"from": &dr.From, "to": &dr.To} {
		v := strings.TrimSpace(r.URL.Query().Get(key))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return report.DateRange{}, badRequest("%s must be a YYYY-MM-DD date", key)
		}
		*dst = d
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From.Time) {
		return report.DateRange{}, badRequest("to must not be before from")
	}
	return dr, nil
}
