package notification

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var concesiones = map[int]string{
	1: "Motor Munich SA",
	2: "Motor Munich Cadí SL",
}

func concesionName(c int) string {
	if name, ok := concesiones[c]; ok {
		return name
	}
	return strconv.Itoa(c)
}

// FormatEuros renders an amount as es-ES currency: 1.234,56 €.
func FormatEuros(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	b.WriteString(" €")
	return b.String()
}

var madrid = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		return time.UTC
	}
	return loc
}()

func formatFecha(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(madrid).Format("02/01/2006 15:04")
}

func formatFechaPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatFecha(*t)
}

func formatKB(size int64) string {
	return fmt.Sprintf("%.1f", float64(size)/1024)
}
