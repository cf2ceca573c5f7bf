package service

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"geoipd/internal/dataset"
)

// 192.0.0.0/24 spans addresses 3221225472 through 3221225727.
const testBlocksCSV = `network,geoname_id,registered_country_geoname_id,represented_country_geoname_id,is_anonymous_proxy,is_satellite_provider,postal_code,latitude,longitude,accuracy_radius
192.0.0.0/24,100,100,,0,0,D02,53.3331,-6.2489,100
1.0.0.0/24,200,200,,0,0,2000,-33.8678,151.2073,1000
10.0.0.0/24,300,300,,0,0,,0.0,0.0,1
2001:200::/32,400,400,,0,0,,35.6897,139.6895,500
`

const testLocationsEnCSV = `geoname_id,locale_code,continent_code,continent_name,country_iso_code,country_name,subdivision_1_iso_code,subdivision_1_name,subdivision_2_iso_code,subdivision_2_name,city_name,metro_code,time_zone,is_in_european_union
100,en,EU,Europe,IE,Ireland,L,Leinster,D,Dublin City,Dublin,,Europe/Dublin,1
200,en,OC,Oceania,AU,Australia,NSW,New South Wales,,,Sydney,,Australia/Sydney,0
300,en,NA,North America,US,United States,,,,,,,America/New_York,0
400,en,AS,Asia,JP,Japan,13,Tokyo,,,Tokyo,,Asia/Tokyo,0
`

// Deliberately partial: only Dublin has a Spanish translation.
const testLocationsEsCSV = `geoname_id,locale_code,continent_code,continent_name,country_iso_code,country_name,subdivision_1_iso_code,subdivision_1_name,subdivision_2_iso_code,subdivision_2_name,city_name,metro_code,time_zone,is_in_european_union
100,es,EU,Europa,IE,Irlanda,L,Leinster,D,Dublín,Dublín,,Europe/Dublin,1
`

func newTestService(t *testing.T, cacheSize int) *GeoService {
	t.Helper()

	dir := t.TempDir()

	blocks := filepath.Join(dir, "blocks.csv")
	if err := os.WriteFile(blocks, []byte(testBlocksCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	locations := map[string]string{
		"en": filepath.Join(dir, "locations-en.csv"),
		"es": filepath.Join(dir, "locations-es.csv"),
	}
	if err := os.WriteFile(locations["en"], []byte(testLocationsEnCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(locations["es"], []byte(testLocationsEsCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := dataset.Load([]string{blocks}, locations, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	service, err := NewGeoService(db, cacheSize, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	return service
}

func TestGeoService_Resolve(t *testing.T) {
	service := newTestService(t, 0)

	tests := []struct {
		name         string
		ip           string
		lang         string
		caller       string
		expectedIP   string
		expectedCity string
		minimal      bool
	}{
		{
			name:         "range start",
			ip:           "192.0.0.0",
			expectedIP:   "192.0.0.0",
			expectedCity: "Dublin",
		},
		{
			name:         "range end",
			ip:           "192.0.0.255",
			expectedIP:   "192.0.0.255",
			expectedCity: "Dublin",
		},
		{
			name:       "one past range end",
			ip:         "192.0.1.0",
			expectedIP: "192.0.1.0",
			minimal:    true,
		},
		{
			name:       "unmatched address",
			ip:         "8.8.8.8",
			expectedIP: "8.8.8.8",
			minimal:    true,
		},
		{
			name:       "loopback",
			ip:         "127.0.0.1",
			expectedIP: "127.0.0.1",
			minimal:    true,
		},
		{
			name:       "ipv6 loopback",
			ip:         "::1",
			expectedIP: "::1",
			minimal:    true,
		},
		{
			name:       "private address inside a loaded range",
			ip:         "10.0.0.5",
			expectedIP: "10.0.0.5",
			minimal:    true,
		},
		{
			name:         "ipv6 match",
			ip:           "2001:200::1",
			expectedIP:   "2001:200::1",
			expectedCity: "Tokyo",
		},
		{
			name:         "invalid ip falls back to caller",
			ip:           "not-an-ip",
			caller:       "1.0.0.1",
			expectedIP:   "1.0.0.1",
			expectedCity: "Sydney",
		},
		{
			name:         "empty ip falls back to caller",
			ip:           "",
			caller:       "192.0.0.77",
			expectedIP:   "192.0.0.77",
			expectedCity: "Dublin",
		},
		{
			name:       "invalid ip and caller",
			ip:         "not-an-ip",
			caller:     "also-not-an-ip",
			expectedIP: "also-not-an-ip",
			minimal:    true,
		},
		{
			name:         "v4-mapped v6 is canonicalized",
			ip:           "::ffff:1.0.0.1",
			expectedIP:   "1.0.0.1",
			expectedCity: "Sydney",
		},
		{
			name:         "translated language",
			ip:           "192.0.0.1",
			lang:         "es",
			expectedIP:   "192.0.0.1",
			expectedCity: "Dublín",
		},
		{
			name:         "partial translation falls back per record",
			ip:           "1.0.0.1",
			lang:         "es",
			expectedIP:   "1.0.0.1",
			expectedCity: "Sydney",
		},
		{
			name:         "unknown language falls back to English",
			ip:           "192.0.0.1",
			lang:         "xx",
			expectedIP:   "192.0.0.1",
			expectedCity: "Dublin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := service.Resolve(tt.ip, tt.lang, tt.caller)

			if res.IPAddress != tt.expectedIP {
				t.Errorf("expected ip %q, got %q", tt.expectedIP, res.IPAddress)
			}

			if tt.minimal {
				if res.GeoData != nil {
					t.Fatalf("expected no geo data, got %+v", res.GeoData)
				}
				return
			}

			if res.GeoData == nil {
				t.Fatal("expected geo data")
			}
			if res.CityName != tt.expectedCity {
				t.Errorf("expected city %q, got %q", tt.expectedCity, res.CityName)
			}
		})
	}
}

func TestGeoService_ResolveFields(t *testing.T) {
	service := newTestService(t, 0)

	res := service.Resolve("192.0.0.42", "", "")
	if res.GeoData == nil {
		t.Fatal("expected geo data")
	}

	if res.Latitude != 53.3331 || res.Longitude != -6.2489 {
		t.Errorf("unexpected coordinates %v %v", res.Latitude, res.Longitude)
	}
	if res.PostalCode != "D02" {
		t.Errorf("unexpected postal code %q", res.PostalCode)
	}
	if res.ContinentCode != "EU" || res.ContinentName != "Europe" {
		t.Errorf("unexpected continent %q %q", res.ContinentCode, res.ContinentName)
	}
	if res.CountryCode != "IE" || res.CountryName != "Ireland" {
		t.Errorf("unexpected country %q %q", res.CountryCode, res.CountryName)
	}
	if res.RegionCode != "L" || res.RegionName != "Leinster" {
		t.Errorf("unexpected region %q %q", res.RegionCode, res.RegionName)
	}
	if res.ProvinceCode != "D" || res.ProvinceName != "Dublin City" {
		t.Errorf("unexpected province %q %q", res.ProvinceCode, res.ProvinceName)
	}
	if res.Timezone != "Europe/Dublin" {
		t.Errorf("unexpected timezone %q", res.Timezone)
	}

	// Empty fields of a matched record stay present as empty strings, which
	// is not the same as the no-geo-data shape.
	res = service.Resolve("10.0.0.5", "", "")
	if res.GeoData != nil {
		t.Fatal("expected no geo data for a private address")
	}
}

// Querying the exact start and end of every public range must return that
// range's location.
func TestGeoService_RoundTrip(t *testing.T) {
	service := newTestService(t, 0)

	tests := []struct {
		start string
		end   string
		city  string
	}{
		{start: "192.0.0.0", end: "192.0.0.255", city: "Dublin"},
		{start: "1.0.0.0", end: "1.0.0.255", city: "Sydney"},
		{start: "2001:200::", end: "2001:200:ffff:ffff:ffff:ffff:ffff:ffff", city: "Tokyo"},
	}

	for _, tt := range tests {
		for _, addr := range []string{tt.start, tt.end} {
			res := service.Resolve(addr, "", "")
			if res.GeoData == nil {
				t.Fatalf("expected geo data for %s", addr)
			}
			if res.CityName != tt.city {
				t.Errorf("expected city %q for %s, got %q", tt.city, addr, res.CityName)
			}
		}
	}
}

func TestGeoService_Cache(t *testing.T) {
	service := newTestService(t, 128)

	first := service.Resolve("192.0.0.1", "es", "")
	second := service.Resolve("192.0.0.1", "es", "")

	if first != second {
		t.Error("expected the memoized response on the second call")
	}
	if second.GeoData == nil || second.CityName != "Dublín" {
		t.Errorf("unexpected cached result %+v", second)
	}

	// Different language, different cache entry.
	english := service.Resolve("192.0.0.1", "en", "")
	if english == first {
		t.Error("expected a distinct entry per language")
	}
	if english.CityName != "Dublin" {
		t.Errorf("unexpected result %+v", english)
	}
}
