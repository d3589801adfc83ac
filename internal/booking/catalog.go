package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Department is one entry of the catalog. Start and End are "HH:MM".
type Department struct {
	Name      string `json:"-"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Capacity  int    `json:"capacity"`
}

// HourlyMarks lists every HH:00 mark from StartTime to EndTime inclusive
func (d Department) HourlyMarks() []string {
	start, err := time.Parse("15:04", d.StartTime)
	if err != nil {
		return nil
	}
	end, err := time.Parse("15:04", d.EndTime)
	if err != nil {
		return nil
	}

	var marks []string
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		marks = append(marks, t.Format("15:04"))
	}
	return marks
}

// HasMark reports whether hhmm is one of the department's hourly marks
func (d Department) HasMark(hhmm string) bool {
	for _, m := range d.HourlyMarks() {
		if m == hhmm {
			return true
		}
	}
	return false
}

func (d Department) validate() error {
	if d.Capacity <= 0 {
		return fmt.Errorf("department %q: capacity must be > 0", d.Name)
	}
	start, err := time.Parse("15:04", d.StartTime)
	if err != nil {
		return fmt.Errorf("department %q: invalid startTime %q", d.Name, d.StartTime)
	}
	end, err := time.Parse("15:04", d.EndTime)
	if err != nil {
		return fmt.Errorf("department %q: invalid endTime %q", d.Name, d.EndTime)
	}
	if end.Before(start) {
		return fmt.Errorf("department %q: endTime before startTime", d.Name)
	}
	return nil
}

// Catalog is a read-only, insertion ordered department table.
// Safe for concurrent use once built.
type Catalog struct {
	order []string
	depts map[string]Department
}

func NewCatalog(depts ...Department) (*Catalog, error) {
	c := &Catalog{depts: make(map[string]Department, len(depts))}
	for _, d := range depts {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, errors.New("department name is empty")
		}
		if _, dup := c.depts[d.Name]; dup {
			return nil, fmt.Errorf("department %q declared twice", d.Name)
		}
		if err := d.validate(); err != nil {
			return nil, err
		}
		c.order = append(c.order, d.Name)
		c.depts[d.Name] = d
	}
	if len(c.order) == 0 {
		return nil, errors.New("catalog has no departments")
	}
	return c, nil
}

// DefaultCatalog is used when no DEPARTMENTS_FILE is configured
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Department{Name: "Cardiology", StartTime: "09:00", EndTime: "12:00", Capacity: 10},
		Department{Name: "Orthopedics", StartTime: "10:00", EndTime: "14:00", Capacity: 8},
		Department{Name: "Pediatrics", StartTime: "09:00", EndTime: "13:00", Capacity: 12},
		Department{Name: "Dermatology", StartTime: "14:00", EndTime: "17:00", Capacity: 6},
		Department{Name: "General Medicine", StartTime: "08:00", EndTime: "16:00", Capacity: 15},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Names returns department names in insertion order
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) Lookup(name string) (Department, bool) {
	d, ok := c.depts[name]
	return d, ok
}

// ParseCatalog decodes `{ name: {startTime, endTime, capacity} }` keeping key order,
// which the numeric department menu depends on.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("catalog must be a JSON object")
	}

	var depts []Department
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read department name: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var d Department
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode department %q: %w", name, err)
		}
		d.Name = name
		depts = append(depts, d)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read catalog end: %w", err)
	}

	return NewCatalog(depts...)
}

// LoadCatalog reads a catalog file, or returns DefaultCatalog when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}
