// Package sigdb loads the signature database: exact signature names,
// mineable base units, ground deposit bases and ship cross sections.
package sigdb

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"sigscan/internal/errs"

	"gopkg.in/yaml.v3"
)

// Deposit kinds.
const (
	KindSpace   = "space_deposit"
	KindSurface = "surface_deposit"
)

// Deposit is a mineable whose signature repeats per unit.
type Deposit struct {
	Name      string `json:"name"`
	Signature int    `json:"signature"`
	Kind      string `json:"kind"`
}

// Ground describes hand/vehicle-mined ground deposits. Zero bases mean the
// database did not set them.
type Ground struct {
	SmallBase int      `json:"small_base"`
	LargeBase int      `json:"large_base"`
	Minerals  []string `json:"minerals"`
}

// ShipDimension is one cross-section axis of a ship.
type ShipDimension struct {
	Ship         string  `json:"ship"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Axis         string  `json:"axis"`
	Dimension    float64 `json:"dimension_m"`
	MaxDimension float64 `json:"max_dimension_m,omitempty"`
}

// RockRef ties a base signature to a rock type in the composition tables.
type RockRef struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
}

// Database is read-only after Load.
type Database struct {
	Exact     map[int]string
	Deposits  []Deposit
	Ground    Ground
	Ships     map[int][]ShipDimension
	RockTypes map[int]RockRef
}

// DefaultRockTypes maps the stock asteroid and surface deposit signatures to
// their rock types.
func DefaultRockTypes() map[int]RockRef {
	return map[int]RockRef{
		1660: {"ITYPE", KindSpace},
		1700: {"CTYPE", KindSpace},
		1720: {"STYPE", KindSpace},
		1750: {"PTYPE", KindSpace},
		1850: {"MTYPE", KindSpace},
		1870: {"QTYPE", KindSpace},
		1900: {"ETYPE", KindSpace},

		1730: {"SHALE", KindSurface},
		1770: {"FELSIC", KindSurface},
		1790: {"OBSIDIAN", KindSurface},
		1800: {"ATACAMITE", KindSurface},
		1820: {"QUARTZITE", KindSurface},
		1840: {"GNEISS", KindSurface},
		1920: {"GRANITE", KindSurface},
		1950: {"IGNEOUS", KindSurface},
	}
}

// Empty returns a database with no entries besides the default rock types.
func Empty() *Database {
	return &Database{
		Exact:     map[int]string{},
		Ships:     map[int][]ShipDimension{},
		RockTypes: DefaultRockTypes(),
	}
}

type fileShip struct {
	Name         string             `json:"name" yaml:"name"`
	Manufacturer string             `json:"manufacturer" yaml:"manufacturer"`
	CrossSection map[string]float64 `json:"cross_section_m" yaml:"cross_section_m"`
	MaxDimension float64            `json:"max_dimension_m" yaml:"max_dimension_m"`
}

type fileGround struct {
	Small    map[string]any `json:"small" yaml:"small"`
	Large    map[string]any `json:"large" yaml:"large"`
	Minerals []string       `json:"minerals" yaml:"minerals"`
}

type file struct {
	SignatureLookup map[string]string `json:"signature_lookup" yaml:"signature_lookup"`
	Minables        struct {
		SpaceDeposits   map[string]any `json:"space_deposits" yaml:"space_deposits"`
		SurfaceDeposits map[string]any `json:"surface_deposits" yaml:"surface_deposits"`
		GroundDeposits  fileGround     `json:"ground_deposits" yaml:"ground_deposits"`
	} `json:"minables" yaml:"minables"`
	Ships     []fileShip        `json:"ships" yaml:"ships"`
	RockTypes map[string]string `json:"rock_types" yaml:"rock_types"`
}

// Load reads a database from a .json, .yaml or .yml file.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeExternalData, "read signature database").With("path", path)
	}

	var f file
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return nil, errs.Newf(errs.CodeExternalData, "unsupported database format %q", ext).With("path", path)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeExternalData, "parse signature database").With("path", path)
	}
	return build(f)
}

func build(f file) (*Database, error) {
	db := Empty()

	for k, name := range f.SignatureLookup {
		sig, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		db.Exact[sig] = name
	}

	db.Deposits = append(db.Deposits, deposits(f.Minables.SpaceDeposits, KindSpace)...)
	db.Deposits = append(db.Deposits, deposits(f.Minables.SurfaceDeposits, KindSurface)...)
	sort.Slice(db.Deposits, func(i, j int) bool {
		a, b := db.Deposits[i], db.Deposits[j]
		if a.Signature != b.Signature {
			return a.Signature < b.Signature
		}
		return a.Name < b.Name
	})

	g := f.Minables.GroundDeposits
	if v, ok := toInt(g.Small["_base_signature"]); ok {
		db.Ground.SmallBase = v
	}
	if v, ok := toInt(g.Large["_base_signature"]); ok {
		db.Ground.LargeBase = v
	}
	db.Ground.Minerals = append([]string(nil), g.Minerals...)

	for _, s := range f.Ships {
		for _, axis := range []string{"x", "y", "z"} {
			dim := s.CrossSection[axis]
			if dim <= 0 {
				continue
			}
			key := int(math.Round(dim * 1000))
			db.Ships[key] = append(db.Ships[key], ShipDimension{
				Ship:         s.Name,
				Manufacturer: s.Manufacturer,
				Axis:         axis,
				Dimension:    dim,
				MaxDimension: s.MaxDimension,
			})
		}
	}

	for k, rock := range f.RockTypes {
		sig, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || rock == "" {
			continue
		}
		ref := db.RockTypes[sig]
		ref.Type = strings.ToUpper(rock)
		if ref.Kind == "" {
			ref.Kind = db.kindOf(sig)
		}
		db.RockTypes[sig] = ref
	}
	return db, nil
}

// deposits reads a name → signature table. Keys starting with "_" are
// metadata and non-numeric values are ignored.
func deposits(m map[string]any, kind string) []Deposit {
	var out []Deposit
	for name, v := range m {
		if strings.HasPrefix(name, "_") {
			continue
		}
		sig, ok := toInt(v)
		if !ok || sig <= 0 {
			continue
		}
		out = append(out, Deposit{Name: name, Signature: sig, Kind: kind})
	}
	return out
}

func (db *Database) kindOf(sig int) string {
	for _, d := range db.Deposits {
		if d.Signature == sig {
			return d.Kind
		}
	}
	return ""
}

// Rock returns the rock type for a base signature.
func (db *Database) Rock(sig int) (RockRef, bool) {
	r, ok := db.RockTypes[sig]
	return r, ok && r.Type != ""
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// String summarizes the database for logs.
func (db *Database) String() string {
	return fmt.Sprintf("%d exact, %d deposits, %d ship dimensions", len(db.Exact), len(db.Deposits), len(db.Ships))
}
