package functions

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mrjobs/mapreduce/types"
)

// measurement is one tab-separated weather reading:
// station, month, city, temperature.
type measurement struct {
	month int
	city  string
	temp  int
}

func parseMeasurement(line string) (measurement, error) {
	fields := splitFields(line, "\t")
	if len(fields) < 4 {
		return measurement{}, fmt.Errorf("%w: %q has %d fields, want at least 4", types.ErrMalformedRecord, line, len(fields))
	}
	month, err := parseInt(fields[1])
	if err != nil {
		return measurement{}, fmt.Errorf("month of %q: %w", line, err)
	}
	temp, err := parseInt(fields[3])
	if err != nil {
		return measurement{}, fmt.Errorf("temperature of %q: %w", line, err)
	}
	return measurement{month: month, city: fields[2], temp: temp}, nil
}

// parseInt accepts the 32-bit signed decimal integers the readings use.
func parseInt(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrMalformedRecord, err)
	}
	return int(n), nil
}

// parseTemps splits a space-separated intermediate value and parses its
// first want fields.
func parseTemps(value string, want int) ([]int, error) {
	fields := splitFields(value, " ")
	if len(fields) < want {
		return nil, fmt.Errorf("%w: value %q has %d fields, want %d", types.ErrMalformedRecord, value, len(fields), want)
	}
	temps := make([]int, want)
	for i := range temps {
		t, err := parseInt(fields[i])
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", value, err)
		}
		temps[i] = t
	}
	return temps, nil
}

// extremes tracks a running minimum and maximum. The first observation
// seeds both; zero is never used as a starting point.
type extremes struct {
	min, max int
	seen     bool
}

func (e *extremes) observe(lo, hi int) {
	if lo < e.min || !e.seen {
		e.min = lo
	}
	if hi > e.max || !e.seen {
		e.max = hi
	}
	e.seen = true
}

// MinMaxTempPerMonthMap emits the month of a reading as key and
// "temp temp" as a seed min/max pair.
func MinMaxTempPerMonthMap(line string) ([]types.KeyValue, error) {
	m, err := parseMeasurement(line)
	if err != nil {
		return nil, err
	}
	return []types.KeyValue{{
		Key:   strconv.Itoa(m.month),
		Value: fmt.Sprintf("%d %d", m.temp, m.temp),
	}}, nil
}

// MinMaxTempPerMonthReduce folds "min max" pairs into the month's
// overall "min max".
func MinMaxTempPerMonthReduce(key string, values []string) (string, error) {
	var e extremes
	for _, v := range values {
		temps, err := parseTemps(v, 2)
		if err != nil {
			return "", fmt.Errorf("key %q: %w", key, err)
		}
		e.observe(temps[0], temps[1])
	}
	return fmt.Sprintf("%d %d", e.min, e.max), nil
}

// MinMaxAveCityMap keys a reading by "{city} month {month}:" and emits the
// temperature three times: as min, as max and as a sample for the average.
func MinMaxAveCityMap(line string) ([]types.KeyValue, error) {
	m, err := parseMeasurement(line)
	if err != nil {
		return nil, err
	}
	return []types.KeyValue{{
		Key:   fmt.Sprintf("%s month %d:", m.city, m.month),
		Value: fmt.Sprintf("%d %d %d", m.temp, m.temp, m.temp),
	}}, nil
}

// MinMaxAveCityReduce folds "min max sample" triples into "min max average".
// The average is sum/count and is not rounded.
func MinMaxAveCityReduce(key string, values []string) (string, error) {
	var (
		e          extremes
		count, sum float64
	)
	for _, v := range values {
		temps, err := parseTemps(v, 3)
		if err != nil {
			return "", fmt.Errorf("key %q: %w", key, err)
		}
		count++
		sum += float64(temps[2])
		e.observe(temps[0], temps[1])
	}
	return fmt.Sprintf("%d %d %s", e.min, e.max, FormatDouble(sum/count)), nil
}

// FormatDouble renders v the way Java's Double.toString does: plain decimal
// with at least one fractional digit inside [1e-3, 1e7), otherwise
// scientific notation such as 1.0E7.
func FormatDouble(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	if abs := math.Abs(v); abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(v, 'E', -1, 64), "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	n, _ := strconv.Atoi(exp)
	return mantissa + "E" + strconv.Itoa(n)
}
