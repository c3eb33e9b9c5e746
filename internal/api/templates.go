package api

import (
	"database/sql"
	"embed"
	"encoding/json"
	"html/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/imagegen"
	"github.com/lox/rollbook/internal/report"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
// Every numeric helper renders NaN as a dash.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"score": imagegen.FormatScore,
		"pct":   imagegen.FormatPct,
		"num": func(v float64, decimals int) string {
			return report.Num(v, decimals, "–")
		},
		"grade": func(v sql.NullFloat64) string {
			if !v.Valid {
				return "–"
			}
			return report.Num(v.Float64, 1, "–")
		},
		"date": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04")
		},
		"json": func(v any) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				log.Error().Err(err).Msg("template json")
				return template.JS("null")
			}
			return template.JS(b)
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
