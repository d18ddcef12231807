package calendar

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HolidayFile is the YAML form of a holiday list
//
//	market: KRX
//	replace_builtin: false
//	holidays:
//	  - date: "2027-01-01"
//	    name: 신정
type HolidayFile struct {
	Market         string         `yaml:"market"`
	ReplaceBuiltin bool           `yaml:"replace_builtin"`
	Holidays       []HolidayEntry `yaml:"holidays"`
}

// HolidayEntry is one closed date
type HolidayEntry struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

// Load builds the calendar from a holiday file.
// An empty path returns the built-in KRX calendar.
func Load(path string) (*Calendar, error) {
	if path == "" {
		return NewKRX(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holiday file: %w", err)
	}

	return Parse(data)
}

// Parse builds the calendar from YAML bytes
func Parse(data []byte) (*Calendar, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file HolidayFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse holiday yaml: %w", err)
	}

	holidays := make(map[time.Time]string)
	if !file.ReplaceBuiltin {
		for d, name := range krxHolidays() {
			holidays[d] = name
		}
	}

	for i, h := range file.Holidays {
		d, err := ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("holidays[%d]: invalid date %q: %w", i, h.Date, err)
		}
		holidays[d] = h.Name
	}

	market := file.Market
	if market == "" {
		market = "KRX"
	}
	return New(market, holidays), nil
}
