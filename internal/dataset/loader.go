package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"geoipd/internal/model"
)

// DefaultLanguage is the locale every dataset must ship and every lookup
// can fall back to.
const DefaultLanguage = "en"

// DB is the fully loaded dataset: one range index per address family plus
// one keyed location table per language. It is built once at startup and
// never mutated afterwards, so any number of readers may share it without
// locking.
type DB struct {
	v4        *rangeIndex
	v6        *rangeIndex
	locations map[string]map[uint32]model.LocationRecord
}

// Load reads the blocks files and the per-language location files into a
// ready-to-query DB. A missing or malformed blocks file is fatal, as is a
// missing location file for the default language; any other missing
// location file only makes that language unavailable.
func Load(blocksPaths []string, locationPaths map[string]string, logger *zap.Logger) (*DB, error) {
	if len(blocksPaths) == 0 {
		return nil, fmt.Errorf("at least one blocks file is required")
	}
	if _, ok := locationPaths[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("a %q locations file is required", DefaultLanguage)
	}

	var v4Records, v6Records []model.RangeRecord

	for _, path := range blocksPaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening blocks file: %w", err)
		}

		records, err := parseBlocks(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing blocks file %s: %w", path, err)
		}

		for _, r := range records {
			if r.Start.Is4() {
				v4Records = append(v4Records, r)
			} else {
				v6Records = append(v6Records, r)
			}
		}
	}

	locations := make(map[string]map[uint32]model.LocationRecord, len(locationPaths))

	for lang, path := range locationPaths {
		f, err := os.Open(path)
		if err != nil {
			if lang == DefaultLanguage {
				return nil, fmt.Errorf("opening %s locations file: %w", lang, err)
			}
			logger.Warn("locations file unavailable, language will fall back to English",
				zap.String("language", lang),
				zap.String("path", path),
				zap.Error(err))
			continue
		}

		table, err := parseLocations(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing %s locations file %s: %w", lang, path, err)
		}

		locations[lang] = table
	}

	db := &DB{
		v4:        newRangeIndex(v4Records),
		v6:        newRangeIndex(v6Records),
		locations: locations,
	}

	logger.Info("dataset loaded",
		zap.Int("ipv4_ranges", db.v4.Len()),
		zap.Int("ipv6_ranges", db.v6.Len()),
		zap.Strings("languages", db.Languages()))

	return db, nil
}

// Find returns the range containing addr, consulting the index for the
// address's family.
func (db *DB) Find(addr netip.Addr) (*model.RangeRecord, bool) {
	if addr.Is4() {
		return db.v4.Find(addr)
	}
	return db.v6.Find(addr)
}

// Location is a pure keyed lookup: it reports absence both for an unknown
// language and for a geoname id missing from that language's table, and
// performs no fallback itself.
func (db *DB) Location(lang string, geonameID uint32) (model.LocationRecord, bool) {
	table, ok := db.locations[lang]
	if !ok {
		return model.LocationRecord{}, false
	}
	loc, ok := table[geonameID]
	return loc, ok
}

// HasLanguage reports whether a locations table was loaded for lang.
func (db *DB) HasLanguage(lang string) bool {
	_, ok := db.locations[lang]
	return ok
}

func (db *DB) Languages() []string {
	langs := make([]string, 0, len(db.locations))
	for lang := range db.locations {
		langs = append(langs, lang)
	}
	return langs
}

// columns maps header names to field positions so the parsers follow the
// published header rather than hard-coded offsets.
type columns map[string]int

func readHeader(reader *csv.Reader, required ...string) (columns, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(columns, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	return cols, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseBlocks(source io.Reader) ([]model.RangeRecord, error) {
	reader := csv.NewReader(source)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1

	cols, err := readHeader(reader, "network", "geoname_id", "postal_code", "latitude", "longitude")
	if err != nil {
		return nil, err
	}

	var records []model.RangeRecord

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		network := cols.get(row, "network")
		geoname := cols.get(row, "geoname_id")
		latitude := cols.get(row, "latitude")
		longitude := cols.get(row, "longitude")

		// The publisher ships ranges without city-level data; those rows
		// carry no geoname id or coordinates and are not part of the index.
		if geoname == "" || latitude == "" || longitude == "" {
			continue
		}

		prefix, err := netip.ParsePrefix(network)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", network, err)
		}

		geonameID, err := strconv.ParseUint(geoname, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid geoname_id %q: %w", geoname, err)
		}

		lat, err := strconv.ParseFloat(latitude, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q: %w", latitude, err)
		}

		lng, err := strconv.ParseFloat(longitude, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q: %w", longitude, err)
		}

		prefix = prefix.Masked()

		records = append(records, model.RangeRecord{
			Start:      prefix.Addr(),
			End:        lastAddr(prefix),
			GeonameID:  uint32(geonameID),
			PostalCode: cols.get(row, "postal_code"),
			Latitude:   lat,
			Longitude:  lng,
		})
	}

	return records, nil
}

func parseLocations(source io.Reader) (map[uint32]model.LocationRecord, error) {
	reader := csv.NewReader(source)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1

	cols, err := readHeader(reader, "geoname_id")
	if err != nil {
		return nil, err
	}

	table := make(map[uint32]model.LocationRecord)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		geoname := cols.get(row, "geoname_id")
		geonameID, err := strconv.ParseUint(geoname, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid geoname_id %q: %w", geoname, err)
		}

		table[uint32(geonameID)] = model.LocationRecord{
			GeonameID:     uint32(geonameID),
			ContinentCode: cols.get(row, "continent_code"),
			ContinentName: cols.get(row, "continent_name"),
			CountryCode:   cols.get(row, "country_iso_code"),
			CountryName:   cols.get(row, "country_name"),
			RegionCode:    cols.get(row, "subdivision_1_iso_code"),
			RegionName:    cols.get(row, "subdivision_1_name"),
			ProvinceCode:  cols.get(row, "subdivision_2_iso_code"),
			ProvinceName:  cols.get(row, "subdivision_2_name"),
			CityName:      cols.get(row, "city_name"),
			Timezone:      cols.get(row, "time_zone"),
		}
	}

	return table, nil
}

// lastAddr computes the highest address of a masked prefix by setting every
// host bit.
func lastAddr(prefix netip.Prefix) netip.Addr {
	if prefix.Addr().Is4() {
		a := prefix.Addr().As4()
		for b := prefix.Bits(); b < 32; b++ {
			a[b/8] |= 1 << (7 - b%8)
		}
		return netip.AddrFrom4(a)
	}

	a := prefix.Addr().As16()
	for b := prefix.Bits(); b < 128; b++ {
		a[b/8] |= 1 << (7 - b%8)
	}
	return netip.AddrFrom16(a)
}
